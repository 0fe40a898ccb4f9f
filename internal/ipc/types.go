package ipc

import "postbox/internal/api"

// Record mirrors the transport record DTO for IPC callers.
type Record = api.Record

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and sync status information.
type StatusResponse struct {
	Running     bool              `json:"running"`
	Online      bool              `json:"online"`
	Draining    bool              `json:"draining"`
	PID         int               `json:"pid"`
	Queue       api.QueueStats    `json:"queue"`
	LastDrain   *api.DrainSummary `json:"last_drain,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	QueueDBPath string            `json:"queue_db_path"`
	LockPath    string            `json:"lock_path"`
}

// StopRequest shuts the daemon down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// SubmitRequest captures a new submission. AttachmentData carries the raw
// blob; it is empty when no attachment was taken.
type SubmitRequest struct {
	Intent           string            `json:"intent"`
	Text             string            `json:"text"`
	Latitude         *float64          `json:"latitude,omitempty"`
	Longitude        *float64          `json:"longitude,omitempty"`
	PostalCode       string            `json:"postal_code,omitempty"`
	Ward             string            `json:"ward,omitempty"`
	StructuredFields map[string]string `json:"structured_fields,omitempty"`
	CitizenRef       string            `json:"citizen_ref,omitempty"`
	AttachmentName   string            `json:"attachment_name,omitempty"`
	AttachmentType   string            `json:"attachment_type,omitempty"`
	AttachmentData   []byte            `json:"attachment_data,omitempty"`
}

// SubmitResponse returns the captured record.
type SubmitResponse struct {
	Record Record `json:"record"`
}

// SyncNowRequest asks for an immediate drain attempt.
type SyncNowRequest struct{}

// SyncNowResponse confirms the drain request was accepted.
type SyncNowResponse struct {
	Requested bool `json:"requested"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Records []Record `json:"records"`
}

// QueueShowRequest fetches a single record by id.
type QueueShowRequest struct {
	ID string `json:"id"`
}

// QueueShowResponse contains a single record.
type QueueShowResponse struct {
	Record Record `json:"record"`
}

// QueueClearRequest removes records, optionally restricted by status.
type QueueClearRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueuePruneRequest removes delivered records older than the given age.
type QueuePruneRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// QueuePruneResponse reports number of pruned entries.
type QueuePruneResponse struct {
	Pruned int64 `json:"pruned"`
}

// RetryFlaggedRequest resets flagged records. Empty list means all flagged
// records.
type RetryFlaggedRequest struct {
	IDs []string `json:"ids"`
}

// RetryFlaggedResponse reports number of retried records.
type RetryFlaggedResponse struct {
	Updated int64 `json:"updated"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalRecords     int    `json:"total_records"`
	Error            string `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
