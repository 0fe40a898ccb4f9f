package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queued submission.
type Status string

const (
	// StatusQueued marks records captured locally and awaiting delivery.
	StatusQueued Status = "queued"
	// StatusSyncing marks the record a drain is currently attempting.
	// Records found in this state at startup were interrupted by a crash
	// and are reset to queued.
	StatusSyncing Status = "syncing"
	// StatusSynced marks records confirmed by the backend. They keep their
	// receipt for status display and are pruned later.
	StatusSynced Status = "synced"
	// StatusFlagged marks records the backend rejected as invalid, or that
	// exhausted the configured attempt cap. They are excluded from drains
	// until the user retries them.
	StatusFlagged Status = "flagged"
)

var allStatuses = []Status{StatusQueued, StatusSyncing, StatusSynced, StatusFlagged}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Payload is the semantic submission content, shaped to match the intake
// backend's submission body.
type Payload struct {
	Intent           string            `json:"intent"`
	Text             string            `json:"text"`
	Latitude         *float64          `json:"latitude,omitempty"`
	Longitude        *float64          `json:"longitude,omitempty"`
	PostalCode       string            `json:"postal_code,omitempty"`
	Ward             string            `json:"ward,omitempty"`
	StructuredFields map[string]string `json:"structured_fields,omitempty"`
	CitizenRef       string            `json:"citizen_id_masked,omitempty"`
	UploadedFiles    []string          `json:"uploaded_files,omitempty"`
}

// Attachment describes the optional photo captured with a submission. The
// blob lives as a spool file next to the database until it is uploaded; after
// upload only RemoteRef remains and the spool file is deleted.
type Attachment struct {
	Name      string
	MediaType string
	SpoolPath string
	RemoteRef string
}

// Pending reports whether the blob still needs uploading.
func (a *Attachment) Pending() bool {
	return a != nil && a.RemoteRef == "" && a.SpoolPath != ""
}

// Record is the durable unit of pending work.
type Record struct {
	ID          string
	Status      Status
	Payload     Payload
	Attachment  *Attachment
	RemoteID    string
	ReceiptHash string
	QRData      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SyncedAt    *time.Time
}

// HasAttachment reports whether the record carries an attachment in any state.
func (r *Record) HasAttachment() bool {
	return r.Attachment != nil
}

// Stats aggregates record counts for status display.
type Stats struct {
	Queued  int
	Syncing int
	Synced  int
	Flagged int
}

// Total returns the number of records across all states.
func (s Stats) Total() int {
	return s.Queued + s.Syncing + s.Synced + s.Flagged
}
