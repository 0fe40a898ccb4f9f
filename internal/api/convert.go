package api

import (
	"time"

	"postbox/internal/queue"
)

// FromRecord converts a queue record into its transport representation.
func FromRecord(record *queue.Record) Record {
	if record == nil {
		return Record{}
	}

	dto := Record{
		ID:          record.ID,
		Status:      string(record.Status),
		Intent:      record.Payload.Intent,
		Text:        record.Payload.Text,
		Latitude:    record.Payload.Latitude,
		Longitude:   record.Payload.Longitude,
		PostalCode:  record.Payload.PostalCode,
		Ward:        record.Payload.Ward,
		Structured:  record.Payload.StructuredFields,
		CitizenRef:  record.Payload.CitizenRef,
		RemoteID:    record.RemoteID,
		ReceiptHash: record.ReceiptHash,
		QRData:      record.QRData,
		Attempts:    record.Attempts,
		LastError:   record.LastError,
		CreatedAt:   formatTime(record.CreatedAt),
		UpdatedAt:   formatTime(record.UpdatedAt),
	}
	if record.SyncedAt != nil {
		dto.SyncedAt = formatTime(*record.SyncedAt)
	}
	if att := record.Attachment; att != nil {
		dto.Attachment = &Attachment{
			Name:      att.Name,
			MediaType: att.MediaType,
			Uploaded:  att.RemoteRef != "",
			RemoteRef: att.RemoteRef,
		}
	}
	return dto
}

// FromStats converts queue counts into their transport representation.
func FromStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Queued:  stats.Queued,
		Syncing: stats.Syncing,
		Synced:  stats.Synced,
		Flagged: stats.Flagged,
		Total:   stats.Total(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}
