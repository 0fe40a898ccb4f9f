package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"postbox/internal/config"
)

// Store manages submission persistence backed by SQLite. Attachment blobs
// live as files in a spool directory next to the database so status updates
// never rewrite megabytes of binary data.
type Store struct {
	db        *sql.DB
	path      string
	spoolDir  string
	minFreeMB int64
}

// Open initializes or connects to the queue database and verifies the schema.
// Records left in-flight by a crash are reset to queued, and spool files that
// lost their row are swept.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:        db,
		path:      dbPath,
		spoolDir:  cfg.SpoolDir(),
		minFreeMB: int64(cfg.Sync.MinFreeMB),
	}

	ctx := context.Background()
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := store.ResetInFlight(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.sweepOrphanSpool(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewAttachment carries the blob handed to Enqueue.
type NewAttachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// Enqueue captures a submission locally and returns the durable record. It
// never touches the network and returns quickly even while offline. The spool
// file is written and fsynced before the row is inserted, so a crash at any
// point leaves either a complete queued record or an orphan blob that the
// next Open sweeps, never a half-written record.
//
// Storage exhaustion and corruption surface as ErrStoreFull / ErrStoreCorrupt
// so the caller can tell the user the report was not captured.
func (s *Store) Enqueue(ctx context.Context, payload Payload, att *NewAttachment) (*Record, error) {
	if payload.Intent == "" {
		return nil, errors.New("payload intent is required")
	}
	if err := s.checkFreeSpace(); err != nil {
		return nil, err
	}

	// Kiosk input arrives in mixed scripts and composition forms; store a
	// single canonical form so backend-side dedup sees stable text.
	payload.Text = norm.NFC.String(payload.Text)
	payload.UploadedFiles = nil

	id := uuid.NewString()
	timestamp := formatTime(time.Now())

	var spoolPath string
	if att != nil {
		if len(att.Data) == 0 {
			return nil, errors.New("attachment data is empty")
		}
		var err error
		spoolPath, err = s.writeSpoolFile(id, att)
		if err != nil {
			return nil, err
		}
	}

	structured, err := marshalStructured(payload.StructuredFields)
	if err != nil {
		s.removeSpoolFile(spoolPath)
		return nil, fmt.Errorf("marshal structured fields: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO records (
            id, status, intent, body, latitude, longitude, postal_code, ward,
            structured_json, citizen_ref, attachment_name, attachment_type,
            attachment_path, attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		StatusQueued,
		payload.Intent,
		payload.Text,
		nullableFloat(payload.Latitude),
		nullableFloat(payload.Longitude),
		nullableString(payload.PostalCode),
		nullableString(payload.Ward),
		nullableString(structured),
		nullableString(payload.CitizenRef),
		attachmentField(att, spoolPath, func(a *NewAttachment) string { return a.Name }),
		attachmentField(att, spoolPath, func(a *NewAttachment) string { return a.MediaType }),
		nullableString(spoolPath),
		timestamp,
		timestamp,
	)
	if err != nil {
		s.removeSpoolFile(spoolPath)
		return nil, classifyStorageError("insert record", err)
	}

	return s.GetByID(ctx, id)
}

// checkFreeSpace preemptively refuses enqueues when the filesystem is nearly
// exhausted, so SQLite never gets close to a torn write.
func (s *Store) checkFreeSpace() error {
	if s.minFreeMB <= 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(s.path), &stat); err != nil {
		// Stat failure is not proof of exhaustion; let the insert decide.
		return nil
	}
	freeMB := int64(stat.Bavail) * stat.Bsize / (1 << 20)
	if freeMB < s.minFreeMB {
		return fmt.Errorf("%w: %d MiB free, %d MiB required", ErrStoreFull, freeMB, s.minFreeMB)
	}
	return nil
}

func (s *Store) writeSpoolFile(recordID string, att *NewAttachment) (string, error) {
	ext := filepath.Ext(att.Name)
	target := filepath.Join(s.spoolDir, recordID+ext)
	tmp := target + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", classifyStorageError("create spool file", err)
	}
	if _, err := file.Write(att.Data); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return "", classifyStorageError("write spool file", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return "", classifyStorageError("sync spool file", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", classifyStorageError("close spool file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", classifyStorageError("finalize spool file", err)
	}
	return target, nil
}

func (s *Store) removeSpoolFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// ReadAttachment returns the spooled blob for a record still awaiting upload.
func (s *Store) ReadAttachment(record *Record) ([]byte, error) {
	if record == nil || record.Attachment == nil || record.Attachment.SpoolPath == "" {
		return nil, errors.New("record has no spooled attachment")
	}
	data, err := os.ReadFile(record.Attachment.SpoolPath)
	if err != nil {
		return nil, fmt.Errorf("read attachment spool: %w", err)
	}
	return data, nil
}

func marshalStructured(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func attachmentField(att *NewAttachment, spoolPath string, pick func(*NewAttachment) string) any {
	if att == nil || spoolPath == "" {
		return nil
	}
	return nullableString(pick(att))
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timestampLayout is RFC 3339 with a fixed-width fraction. Timestamps are
// stored as TEXT and ordered lexicographically, so the fraction must never
// be trimmed or two records captured in the same second can sort out of
// creation order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
