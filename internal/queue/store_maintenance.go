package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneSynced deletes synced records older than the cutoff. The store is not
// a submission history; synced rows exist only for short-term status display.
func (s *Store) PruneSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM records WHERE status = ? AND synced_at IS NOT NULL AND synced_at < ?`,
		StatusSynced,
		formatTime(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("prune synced: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a record by identifier, including any spooled blob.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 && record.Attachment != nil {
		s.removeSpoolFile(record.Attachment.SpoolPath)
	}
	return affected > 0, nil
}

// Clear removes records by status set, or every record when no status is
// given. Spooled blobs for removed records are deleted as well.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	records, err := s.List(ctx, statuses...)
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, record := range records {
		ok, err := s.Remove(ctx, record.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// sweepOrphanSpool removes spool files whose record no longer exists. They
// appear when a crash lands between the blob write and the row insert, or
// between a row delete and the blob removal.
func (s *Store) sweepOrphanSpool(ctx context.Context) error {
	entries, err := os.ReadDir(s.spoolDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read spool dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".tmp") {
			_ = os.Remove(filepath.Join(s.spoolDir, name))
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		var count int
		err := s.db.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM records WHERE id = ? AND attachment_path IS NOT NULL`,
			id,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check spool owner: %w", err)
		}
		if count == 0 {
			_ = os.Remove(filepath.Join(s.spoolDir, name))
		}
	}
	return nil
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'records'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM records")
		if err := row.Scan(&health.TotalRecords); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count records: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
