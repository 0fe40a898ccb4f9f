package api

import (
	"testing"
	"time"

	"postbox/internal/queue"
)

func TestFromRecordProjectsFields(t *testing.T) {
	lat := 52.52
	synced := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	record := &queue.Record{
		ID:     "a1b2",
		Status: queue.StatusSynced,
		Payload: queue.Payload{
			Intent:     "pothole",
			Text:       "deep pothole",
			Latitude:   &lat,
			PostalCode: "10115",
			Ward:       "Mitte",
		},
		Attachment: &queue.Attachment{
			Name:      "pothole.jpg",
			MediaType: "image/jpeg",
			RemoteRef: "/static/upload-1.jpg",
		},
		RemoteID:    "R042",
		ReceiptHash: "hash-R042",
		Attempts:    2,
		CreatedAt:   time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
		SyncedAt:    &synced,
	}

	dto := FromRecord(record)
	if dto.ID != "a1b2" || dto.Status != "synced" || dto.Intent != "pothole" {
		t.Fatalf("unexpected projection: %+v", dto)
	}
	if dto.Latitude == nil || *dto.Latitude != lat {
		t.Fatal("expected latitude carried through")
	}
	if dto.Attachment == nil || !dto.Attachment.Uploaded {
		t.Fatal("expected uploaded attachment projection")
	}
	if dto.SyncedAt == "" || dto.CreatedAt == "" {
		t.Fatal("expected formatted timestamps")
	}
	if dto.RemoteID != "R042" {
		t.Fatalf("expected receipt id, got %q", dto.RemoteID)
	}
}

func TestFromRecordHandlesNil(t *testing.T) {
	dto := FromRecord(nil)
	if dto.ID != "" {
		t.Fatalf("expected zero value for nil record, got %+v", dto)
	}
}

func TestFromStatsTotals(t *testing.T) {
	stats := FromStats(queue.Stats{Queued: 2, Syncing: 1, Synced: 3, Flagged: 1})
	if stats.Total != 7 {
		t.Fatalf("expected total 7, got %d", stats.Total)
	}
}
