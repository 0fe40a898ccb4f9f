package logging

// Standardized attribute keys shared across components so log lines stay
// machine-filterable.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldRecordID  = "record_id"
	FieldDrainID   = "drain_id"
	FieldIntent    = "intent"
	FieldRemoteID  = "remote_id"
	FieldErrorKind = "error_kind"
	FieldErrorHint = "hint"
)
