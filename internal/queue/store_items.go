package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const recordColumns = "id, status, intent, body, latitude, longitude, postal_code, ward, structured_json, citizen_ref, attachment_name, attachment_type, attachment_path, remote_ref, remote_id, receipt_hash, qr_data, attempts, last_error, created_at, updated_at, synced_at"

// GetByID fetches a record by identifier. Returns ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// ListQueued returns records awaiting delivery in creation order. Earlier
// reports drain first.
func (s *Store) ListQueued(ctx context.Context) ([]*Record, error) {
	return s.List(ctx, StatusQueued)
}

// List returns records filtered by status set (or all records when no status
// is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordColumns + ` FROM records`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Depth returns the number of records still awaiting delivery.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM records WHERE status IN (?, ?)`,
		StatusQueued, StatusSyncing,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return count, nil
}

// CountByStatus returns record counts grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM records GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusQueued:
			stats.Queued = count
		case StatusSyncing:
			stats.Syncing = count
		case StatusSynced:
			stats.Synced = count
		case StatusFlagged:
			stats.Flagged = count
		}
	}
	return stats, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id             string
		statusStr      string
		intent         string
		body           string
		latitude       sql.NullFloat64
		longitude      sql.NullFloat64
		postalCode     sql.NullString
		ward           sql.NullString
		structuredJSON sql.NullString
		citizenRef     sql.NullString
		attachName     sql.NullString
		attachType     sql.NullString
		attachPath     sql.NullString
		remoteRef      sql.NullString
		remoteID       sql.NullString
		receiptHash    sql.NullString
		qrData         sql.NullString
		attempts       int
		lastError      sql.NullString
		createdRaw     string
		updatedRaw     string
		syncedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&intent,
		&body,
		&latitude,
		&longitude,
		&postalCode,
		&ward,
		&structuredJSON,
		&citizenRef,
		&attachName,
		&attachType,
		&attachPath,
		&remoteRef,
		&remoteID,
		&receiptHash,
		&qrData,
		&attempts,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&syncedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:     id,
		Status: Status(statusStr),
		Payload: Payload{
			Intent:     intent,
			Text:       body,
			PostalCode: postalCode.String,
			Ward:       ward.String,
			CitizenRef: citizenRef.String,
		},
		RemoteID:    remoteID.String,
		ReceiptHash: receiptHash.String,
		QRData:      qrData.String,
		Attempts:    attempts,
		LastError:   lastError.String,
	}
	if latitude.Valid {
		v := latitude.Float64
		record.Payload.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		record.Payload.Longitude = &v
	}
	if structuredJSON.Valid && structuredJSON.String != "" {
		fields := make(map[string]string)
		if err := json.Unmarshal([]byte(structuredJSON.String), &fields); err != nil {
			return nil, fmt.Errorf("decode structured fields for %s: %w", id, err)
		}
		record.Payload.StructuredFields = fields
	}
	if attachName.Valid || attachPath.Valid || remoteRef.Valid {
		record.Attachment = &Attachment{
			Name:      attachName.String,
			MediaType: attachType.String,
			SpoolPath: attachPath.String,
			RemoteRef: remoteRef.String,
		}
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	if syncedRaw.Valid {
		if synced, err := parseTimeString(syncedRaw.String); err == nil {
			record.SyncedAt = &synced
		}
	}
	return record, nil
}
