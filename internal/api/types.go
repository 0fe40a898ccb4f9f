package api

// dateTimeFormat is used for RFC3339 timestamps in transport payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record describes a queued submission in a transport-friendly format.
type Record struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Intent      string            `json:"intent"`
	Text        string            `json:"text"`
	Latitude    *float64          `json:"latitude,omitempty"`
	Longitude   *float64          `json:"longitude,omitempty"`
	PostalCode  string            `json:"postalCode,omitempty"`
	Ward        string            `json:"ward,omitempty"`
	Structured  map[string]string `json:"structuredFields,omitempty"`
	CitizenRef  string            `json:"citizenRef,omitempty"`
	Attachment  *Attachment       `json:"attachment,omitempty"`
	RemoteID    string            `json:"remoteId,omitempty"`
	ReceiptHash string            `json:"receiptHash,omitempty"`
	QRData      string            `json:"qrData,omitempty"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"lastError,omitempty"`
	CreatedAt   string            `json:"createdAt,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
	SyncedAt    string            `json:"syncedAt,omitempty"`
}

// Attachment describes attachment state for a record.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Uploaded  bool   `json:"uploaded"`
	RemoteRef string `json:"remoteRef,omitempty"`
}

// QueueStats provides a normalized queue counts payload.
type QueueStats struct {
	Queued  int `json:"queued"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Flagged int `json:"flagged"`
	Total   int `json:"total"`
}

// DrainSummary reports the outcome of the most recent drain pass.
type DrainSummary struct {
	DrainID   string `json:"drainId"`
	Started   string `json:"started,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Flagged   int    `json:"flagged"`
}
