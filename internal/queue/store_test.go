package queue_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"postbox/internal/queue"
	"postbox/internal/testsupport"
)

func TestEnqueueAssignsIDAndQueuedStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record, err := store.Enqueue(ctx, queue.Payload{Intent: "garbage", Text: "overflowing bin"}, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected record ID to be assigned")
	}
	if record.Status != queue.StatusQueued {
		t.Fatalf("expected queued status, got %s", record.Status)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Payload.Intent != "garbage" || fetched.Payload.Text != "overflowing bin" {
		t.Fatalf("unexpected payload: %#v", fetched.Payload)
	}
}

func TestEnqueueRequiresIntent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Enqueue(context.Background(), queue.Payload{Text: "no intent"}, nil); err == nil {
		t.Fatal("expected error when intent missing")
	}
}

func TestEnqueueNormalizesText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	// NFD-decomposed "é"; the store should persist the NFC form.
	decomposed := "café"
	record, err := store.Enqueue(context.Background(), queue.Payload{Intent: "other", Text: decomposed}, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if record.Payload.Text != "café" {
		t.Fatalf("expected NFC text, got %q", record.Payload.Text)
	}
}

func TestEnqueueRoundTripsOptionalFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	lat, lon := 13.0827, 80.2707
	payload := queue.Payload{
		Intent:     "streetlight",
		Text:       "lamp out near the market",
		Latitude:   &lat,
		Longitude:  &lon,
		PostalCode: "600001",
		Ward:       "Ward 12",
		StructuredFields: map[string]string{
			"account_no": "AC-884",
			"biller":     "TNEB",
		},
		CitizenRef: "XXXX1234",
	}

	record, err := store.Enqueue(context.Background(), payload, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	fetched, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Payload.Latitude == nil || *fetched.Payload.Latitude != lat {
		t.Fatalf("latitude lost: %#v", fetched.Payload.Latitude)
	}
	if fetched.Payload.Ward != "Ward 12" || fetched.Payload.PostalCode != "600001" {
		t.Fatalf("location hints lost: %#v", fetched.Payload)
	}
	if fetched.Payload.StructuredFields["account_no"] != "AC-884" {
		t.Fatalf("structured fields lost: %#v", fetched.Payload.StructuredFields)
	}
	if fetched.Payload.CitizenRef != "XXXX1234" {
		t.Fatalf("citizen ref lost: %q", fetched.Payload.CitizenRef)
	}
}

func TestEnqueueSpoolsAttachment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	blob := []byte("jpeg-bytes")
	record, err := store.Enqueue(context.Background(), queue.Payload{Intent: "garbage", Text: "photo attached"}, &queue.NewAttachment{
		Name:      "evidence.jpg",
		MediaType: "image/jpeg",
		Data:      blob,
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if record.Attachment == nil || !record.Attachment.Pending() {
		t.Fatalf("expected pending attachment, got %#v", record.Attachment)
	}

	data, err := store.ReadAttachment(record)
	if err != nil {
		t.Fatalf("ReadAttachment failed: %v", err)
	}
	if string(data) != string(blob) {
		t.Fatalf("spooled blob mismatch: %q", data)
	}
}

func TestListQueuedIsFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var want []string
	for i := 0; i < 3; i++ {
		record, err := store.Enqueue(ctx, queue.Payload{Intent: "garbage", Text: fmt.Sprintf("report %d", i)}, nil)
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		want = append(want, record.ID)
		time.Sleep(2 * time.Millisecond)
	}

	queued, err := store.ListQueued(ctx)
	if err != nil {
		t.Fatalf("ListQueued failed: %v", err)
	}
	if len(queued) != 3 {
		t.Fatalf("expected 3 queued records, got %d", len(queued))
	}
	for i, record := range queued {
		if record.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], record.ID)
		}
	}
}

func TestMarkSyncingIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.MustEnqueue(t, store, "garbage", "exclusive")

	ok, err := store.MarkSyncing(ctx, record.ID)
	if err != nil {
		t.Fatalf("MarkSyncing failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first MarkSyncing to win")
	}

	ok, err = store.MarkSyncing(ctx, record.ID)
	if err != nil {
		t.Fatalf("second MarkSyncing failed: %v", err)
	}
	if ok {
		t.Fatal("expected second MarkSyncing to be rejected")
	}
}

func TestSetRemoteRefDropsBlob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record, err := store.Enqueue(ctx, queue.Payload{Intent: "garbage", Text: "with photo"}, &queue.NewAttachment{
		Name:      "photo.jpg",
		MediaType: "image/jpeg",
		Data:      []byte("blob"),
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	spoolPath := record.Attachment.SpoolPath

	if err := store.SetRemoteRef(ctx, record.ID, "/static/abc.jpg"); err != nil {
		t.Fatalf("SetRemoteRef failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Attachment == nil || updated.Attachment.RemoteRef != "/static/abc.jpg" {
		t.Fatalf("expected remote ref, got %#v", updated.Attachment)
	}
	if updated.Attachment.Pending() {
		t.Fatal("attachment should no longer be pending")
	}
	if _, err := os.Stat(spoolPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected spool file removed, stat err=%v", err)
	}
}

func TestMarkSyncedStoresReceipt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.MustEnqueue(t, store, "garbage", "receipt test")

	receipt := queue.Receipt{RemoteID: "R123", ReceiptHash: "hash", QRData: "qr"}
	if err := store.MarkSynced(ctx, record.ID, receipt); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusSynced {
		t.Fatalf("expected synced, got %s", updated.Status)
	}
	if updated.RemoteID != "R123" || updated.ReceiptHash != "hash" {
		t.Fatalf("receipt lost: %#v", updated)
	}
	if updated.SyncedAt == nil {
		t.Fatal("expected synced_at to be set")
	}

	depth, err := store.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected empty queue after sync, depth=%d", depth)
	}
}

func TestMarkSyncedUnknownID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	err := store.MarkSynced(context.Background(), "missing", queue.Receipt{RemoteID: "R1"})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordFailureKeepsRecordQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.MustEnqueue(t, store, "garbage", "will fail")

	if _, err := store.MarkSyncing(ctx, record.ID); err != nil {
		t.Fatalf("MarkSyncing failed: %v", err)
	}
	if err := store.RecordFailure(ctx, record.ID, "connection refused"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusQueued {
		t.Fatalf("expected record back in queued, got %s", updated.Status)
	}
	if updated.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", updated.Attempts)
	}
	if updated.LastError != "connection refused" {
		t.Fatalf("expected last error recorded, got %q", updated.LastError)
	}
}

func TestFlaggedRecordsExcludedFromQueueUntilRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.MustEnqueue(t, store, "garbage", "invalid payload")

	if err := store.MarkFlagged(ctx, record.ID, "validation error"); err != nil {
		t.Fatalf("MarkFlagged failed: %v", err)
	}

	queued, err := store.ListQueued(ctx)
	if err != nil {
		t.Fatalf("ListQueued failed: %v", err)
	}
	if len(queued) != 0 {
		t.Fatalf("flagged record should not be queued, got %d", len(queued))
	}

	moved, err := store.RetryFlagged(ctx)
	if err != nil {
		t.Fatalf("RetryFlagged failed: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 record retried, got %d", moved)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusQueued || updated.Attempts != 0 {
		t.Fatalf("expected reset queued record, got %#v", updated)
	}
}

func TestReopenResetsInFlightRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ctx := context.Background()
	record, err := store.Enqueue(ctx, queue.Payload{Intent: "garbage", Text: "survives restart"}, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.MarkSyncing(ctx, record.ID); err != nil {
		t.Fatalf("MarkSyncing failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	recovered, err := reopened.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID after reopen failed: %v", err)
	}
	if recovered.Status != queue.StatusQueued {
		t.Fatalf("expected in-flight record reset to queued, got %s", recovered.Status)
	}
	if recovered.Payload.Text != "survives restart" {
		t.Fatalf("payload corrupted across restart: %q", recovered.Payload.Text)
	}
}

func TestReopenPreservesRemoteRef(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ctx := context.Background()
	record, err := store.Enqueue(ctx, queue.Payload{Intent: "garbage", Text: "partial"}, &queue.NewAttachment{
		Name: "p.jpg", MediaType: "image/jpeg", Data: []byte("blob"),
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := store.SetRemoteRef(ctx, record.ID, "/static/p.jpg"); err != nil {
		t.Fatalf("SetRemoteRef failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	recovered, err := reopened.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if recovered.Attachment == nil || recovered.Attachment.RemoteRef != "/static/p.jpg" {
		t.Fatalf("remote ref lost across restart: %#v", recovered.Attachment)
	}
	if recovered.Attachment.Pending() {
		t.Fatal("uploaded attachment must not be pending after restart")
	}
}

func TestSweepRemovesOrphanSpoolFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	// Simulate a crash between blob write and row insert.
	orphan := filepath.Join(cfg.SpoolDir(), "deadbeef.jpg")
	if err := os.WriteFile(orphan, []byte("orphan"), 0o600); err != nil {
		t.Fatalf("write orphan: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	testsupport.MustOpenStore(t, cfg)
	if _, err := os.Stat(orphan); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected orphan swept, stat err=%v", err)
	}
}

func TestPruneSynced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	old := testsupport.MustEnqueue(t, store, "garbage", "old synced")
	if err := store.MarkSynced(ctx, old.ID, queue.Receipt{RemoteID: "R1"}); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	keep := testsupport.MustEnqueue(t, store, "garbage", "still queued")

	pruned, err := store.PruneSynced(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneSynced failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned record, got %d", pruned)
	}

	if _, err := store.GetByID(ctx, old.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected pruned record gone, got %v", err)
	}
	if _, err := store.GetByID(ctx, keep.ID); err != nil {
		t.Fatalf("queued record must survive prune: %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "garbage", "a")
	b := testsupport.MustEnqueue(t, store, "water", "b")
	if err := store.MarkSynced(ctx, b.ID, queue.Receipt{RemoteID: "R9"}); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	stats, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if stats.Queued != 1 || stats.Synced != 1 || stats.Total() != 2 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestRemoveDeletesSpool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record, err := store.Enqueue(ctx, queue.Payload{Intent: "garbage", Text: "remove me"}, &queue.NewAttachment{
		Name: "x.png", MediaType: "image/png", Data: []byte("img"),
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	spoolPath := record.Attachment.SpoolPath

	ok, err := store.Remove(ctx, record.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !ok {
		t.Fatal("expected record removed")
	}
	if _, err := os.Stat(spoolPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected spool removed, stat err=%v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.MustEnqueue(t, store, "garbage", "health probe")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %#v", health)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.TotalRecords != 1 {
		t.Fatalf("expected 1 record, got %d", health.TotalRecords)
	}
}
