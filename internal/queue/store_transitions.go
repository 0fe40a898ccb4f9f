package queue

import (
	"context"
	"fmt"
	"time"
)

// MarkSyncing transitions a queued record to syncing for the duration of a
// delivery attempt. It reports whether the transition happened; a false
// result means another actor already moved the record, and the caller must
// skip it.
func (s *Store) MarkSyncing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE records SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusSyncing,
		formatTime(time.Now()),
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("mark syncing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetRemoteRef persists the uploaded attachment reference and discards the
// local blob. Called immediately after a successful upload so a crash
// mid-drain never forces a re-upload.
func (s *Store) SetRemoteRef(ctx context.Context, id, remoteRef string) error {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE records SET remote_ref = ?, attachment_path = NULL, updated_at = ? WHERE id = ?`,
		remoteRef,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return classifyStorageError("set remote ref", err)
	}

	if record.Attachment != nil {
		s.removeSpoolFile(record.Attachment.SpoolPath)
	}
	return nil
}

// Receipt carries the backend's confirmation of a created submission.
type Receipt struct {
	RemoteID    string
	ReceiptHash string
	QRData      string
}

// MarkSynced records successful delivery. The record keeps its receipt for
// status display until pruned, and is excluded from every future drain.
func (s *Store) MarkSynced(ctx context.Context, id string, receipt Receipt) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE records
         SET status = ?, remote_id = ?, receipt_hash = ?, qr_data = ?,
             last_error = NULL, synced_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusSynced,
		receipt.RemoteID,
		nullableString(receipt.ReceiptHash),
		nullableString(receipt.QRData),
		now,
		now,
		id,
	)
	if err != nil {
		return classifyStorageError("mark synced", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// RecordFailure returns an attempted record to queued with the failure noted,
// leaving it eligible for the next drain.
func (s *Store) RecordFailure(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE records
         SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
         WHERE id = ?`,
		StatusQueued,
		message,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return classifyStorageError("record failure", err)
	}
	return nil
}

// MarkFlagged parks a record that cannot succeed without user attention:
// backend validation rejections and attempt-cap exhaustion. Flagged records
// are excluded from drains until RetryFlagged moves them back.
func (s *Store) MarkFlagged(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE records
         SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
         WHERE id = ?`,
		StatusFlagged,
		reason,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return classifyStorageError("mark flagged", err)
	}
	return nil
}

// RetryFlagged moves flagged records back to queued. With no ids, all flagged
// records retry.
func (s *Store) RetryFlagged(ctx context.Context, ids ...string) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE records SET status = ?, attempts = 0, last_error = NULL, updated_at = ? WHERE status = ?`,
			StatusQueued,
			now,
			StatusFlagged,
		)
		if err != nil {
			return 0, fmt.Errorf("retry flagged records: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFlagged)
	query := `UPDATE records SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = ?`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected records: %w", err)
	}
	return res.RowsAffected()
}

// ResetInFlight returns records stranded in syncing back to queued. A drain
// interrupted by a crash leaves records here; delivery state is recovered
// from remote_ref, so resetting is always safe.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE records SET status = ?, updated_at = ? WHERE status = ?`,
		StatusQueued,
		formatTime(time.Now()),
		StatusSyncing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight records: %w", err)
	}
	return res.RowsAffected()
}
