package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"postbox/internal/queue"
)

var (
	// ErrTransient marks failures that may clear on a later attempt:
	// timeouts, connection resets, DNS failures, 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks payloads the backend rejected as malformed.
	// Retrying an unchanged record cannot succeed.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks authentication and endpoint misconfiguration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups for records or resources that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks deadline expirations on remote calls.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a delivery error to the queue status the sync engine
// should persist after the attempt fails. Validation and configuration
// failures cannot succeed by retrying unchanged, so the record is flagged for
// user attention instead of silently retrying forever.
func FailureStatus(err error) queue.Status {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return queue.StatusFlagged
	default:
		return queue.StatusQueued
	}
}

// IsTransient reports whether an error should feed back into the network
// monitor as evidence that connectivity is down.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
