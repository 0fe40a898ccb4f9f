package queue

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	// ErrStoreFull indicates the record could not be persisted because the
	// device is out of space. Callers must surface this to the user: the
	// report was NOT captured.
	ErrStoreFull = errors.New("submission store full")
	// ErrStoreCorrupt indicates the database rejected the write due to
	// corruption. Also surfaced to the caller, never swallowed.
	ErrStoreCorrupt = errors.New("submission store corrupt")
	// ErrNotFound indicates no record exists with the requested id.
	ErrNotFound = errors.New("record not found")
)

// classifyStorageError tags persistence failures with the sentinel the
// enqueue contract promises. Unrecognized errors pass through wrapped.
func classifyStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %s: %v", ErrStoreFull, op, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database or disk is full"):
		return fmt.Errorf("%w: %s: %v", ErrStoreFull, op, err)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "corrupt"):
		return fmt.Errorf("%w: %s: %v", ErrStoreCorrupt, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
