package syncer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"postbox/internal/logging"
	"postbox/internal/netmon"
	"postbox/internal/queue"
	"postbox/internal/services/civicapi"
	"postbox/internal/testsupport"
)

type recordingNotifier struct {
	mu      sync.Mutex
	flagged []string
	syncs   int
	storage int
}

func (n *recordingNotifier) NotifySyncCompleted(_ context.Context, delivered, failed int, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncs++
	return nil
}

func (n *recordingNotifier) NotifyRecordFlagged(_ context.Context, recordID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flagged = append(n.flagged, recordID)
	return nil
}

func (n *recordingNotifier) NotifyStorageError(context.Context, error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.storage++
	return nil
}

func (n *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (n *recordingNotifier) TestNotification(context.Context) error           { return nil }

func (n *recordingNotifier) flaggedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.flagged...)
}

func newTestEngine(t *testing.T, stub *testsupport.StubBackend, opts ...testsupport.ConfigOption) (*Engine, *queue.Store, *recordingNotifier) {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithBaseURL(stub.URL())}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Sync.DebounceSeconds = 0

	store := testsupport.MustOpenStore(t, cfg)
	monitor := netmon.NewWithProbe(cfg, func(context.Context) error { return nil }, logging.NewNop())
	monitor.ReportSuccess()
	notifier := &recordingNotifier{}
	engine := New(cfg, store, civicapi.New(cfg), monitor, notifier, logging.NewNop())
	return engine, store, notifier
}

func statusOf(t *testing.T, store *queue.Store, id string) queue.Status {
	t.Helper()
	record, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get record %s: %v", id, err)
	}
	return record.Status
}

func TestDrainDeliversInArrivalOrder(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, notifier := newTestEngine(t, stub)
	ctx := context.Background()

	first := testsupport.MustEnqueue(t, store, "pothole", "large pothole on main street")
	second := testsupport.MustEnqueue(t, store, "streetlight", "lamp out near the park")
	third := testsupport.MustEnqueue(t, store, "garbage", "overflowing bin at the market")

	engine.drain(ctx)

	for _, record := range []*queue.Record{first, second, third} {
		if got := statusOf(t, store, record.ID); got != queue.StatusSynced {
			t.Fatalf("record %s: expected synced, got %s", record.ID, got)
		}
	}

	// Receipts are issued in delivery order, so arrival order shows up in
	// which receipt each record holds.
	got, err := store.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get first record: %v", err)
	}
	if got.RemoteID != "R001" {
		t.Fatalf("expected first arrival to receive receipt R001, got %q", got.RemoteID)
	}
	if got.ReceiptHash != "hash-R001" || got.QRData != "qr-R001" {
		t.Fatalf("receipt metadata not persisted: %+v", got)
	}

	if notifier.syncs != 1 {
		t.Fatalf("expected one sync notification, got %d", notifier.syncs)
	}
	summary, ok := engine.LastDrain()
	if !ok {
		t.Fatal("expected drain summary")
	}
	if summary.Delivered != 3 || summary.Failed != 0 || summary.Flagged != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestDrainUploadsAttachmentExactlyOnce(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, _ := newTestEngine(t, stub)
	ctx := context.Background()

	record, err := store.Enqueue(ctx,
		queue.Payload{Intent: "pothole", Text: "photo attached"},
		&queue.NewAttachment{Name: "pothole.jpg", MediaType: "image/jpeg", Data: []byte("jpegdata")},
	)
	if err != nil {
		t.Fatalf("enqueue with attachment: %v", err)
	}

	// Upload succeeds but the submission call fails once, leaving a record
	// with a persisted remote ref and no receipt.
	stub.FailSubmits(1, 500)
	engine.drain(ctx)

	if got := statusOf(t, store, record.ID); got != queue.StatusQueued {
		t.Fatalf("expected requeued record after failed submission, got %s", got)
	}
	interrupted, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if interrupted.Attachment == nil || interrupted.Attachment.RemoteRef == "" {
		t.Fatal("expected remote ref persisted after upload")
	}
	if interrupted.Attachment.Pending() {
		t.Fatal("attachment should not be pending once uploaded")
	}

	engine.drain(ctx)

	if got := statusOf(t, store, record.ID); got != queue.StatusSynced {
		t.Fatalf("expected synced record after retry, got %s", got)
	}
	if calls := stub.UploadCalls(); calls != 1 {
		t.Fatalf("expected exactly one upload call, got %d", calls)
	}
	if calls := stub.SubmitCalls(); calls != 2 {
		t.Fatalf("expected two submission calls, got %d", calls)
	}
}

func TestUploadRetryDoesNotResubmit(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, _ := newTestEngine(t, stub)
	ctx := context.Background()

	record, err := store.Enqueue(ctx,
		queue.Payload{Intent: "garbage", Text: "dumped furniture, photo attached"},
		&queue.NewAttachment{Name: "dump.jpg", MediaType: "image/jpeg", Data: []byte("jpegdata")},
	)
	if err != nil {
		t.Fatalf("enqueue with attachment: %v", err)
	}

	stub.FailUploads(1)
	engine.drain(ctx)

	if got := statusOf(t, store, record.ID); got != queue.StatusQueued {
		t.Fatalf("expected requeued record after failed upload, got %s", got)
	}
	if calls := stub.SubmitCalls(); calls != 0 {
		t.Fatalf("submission must not run before the upload succeeds, got %d calls", calls)
	}

	engine.drain(ctx)

	if got := statusOf(t, store, record.ID); got != queue.StatusSynced {
		t.Fatalf("expected synced record after upload retry, got %s", got)
	}
	if calls := stub.UploadCalls(); calls != 2 {
		t.Fatalf("expected two upload calls, got %d", calls)
	}
	if calls := stub.SubmitCalls(); calls != 1 {
		t.Fatalf("expected exactly one submission call, got %d", calls)
	}
}

func TestValidationFailureFlagsWithoutBlockingQueue(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, notifier := newTestEngine(t, stub)
	ctx := context.Background()

	bad := testsupport.MustEnqueue(t, store, "pothole", "rejected payload")
	good := testsupport.MustEnqueue(t, store, "streetlight", "valid payload")

	stub.FailSubmits(1, 422)
	engine.drain(ctx)

	if got := statusOf(t, store, bad.ID); got != queue.StatusFlagged {
		t.Fatalf("expected rejected record flagged, got %s", got)
	}
	if got := statusOf(t, store, good.ID); got != queue.StatusSynced {
		t.Fatalf("expected later record delivered despite earlier rejection, got %s", got)
	}

	flagged := notifier.flaggedIDs()
	if len(flagged) != 1 || flagged[0] != bad.ID {
		t.Fatalf("expected flagged notification for %s, got %v", bad.ID, flagged)
	}
}

func TestTransientFailureDoesNotBlockLaterRecords(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, _ := newTestEngine(t, stub)
	ctx := context.Background()

	first := testsupport.MustEnqueue(t, store, "pothole", "first")
	second := testsupport.MustEnqueue(t, store, "garbage", "second")

	stub.FailSubmits(1, 503)
	engine.drain(ctx)

	if calls := stub.SubmitCalls(); calls != 2 {
		t.Fatalf("expected both records attempted, got %d calls", calls)
	}
	if got := statusOf(t, store, first.ID); got != queue.StatusQueued {
		t.Fatalf("expected first record requeued, got %s", got)
	}
	if got := statusOf(t, store, second.ID); got != queue.StatusSynced {
		t.Fatalf("expected second record delivered despite earlier failure, got %s", got)
	}
	requeued, err := store.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get first record: %v", err)
	}
	if requeued.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", requeued.Attempts)
	}
	if requeued.LastError == "" {
		t.Fatal("expected last error recorded on requeued record")
	}

	engine.drain(ctx)
	if got := statusOf(t, store, first.ID); got != queue.StatusSynced {
		t.Fatalf("expected requeued record delivered on next drain, got %s", got)
	}
}

func TestAttemptCapFlagsRecord(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, notifier := newTestEngine(t, stub, testsupport.WithMaxAttempts(2))
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "pothole", "keeps failing")

	stub.FailSubmits(10, 503)
	engine.drain(ctx)
	engine.drain(ctx)

	if got := statusOf(t, store, record.ID); got != queue.StatusFlagged {
		t.Fatalf("expected record flagged at attempt cap, got %s", got)
	}
	capped, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get capped record: %v", err)
	}
	if capped.Attempts != 2 {
		t.Fatalf("expected attempts to stop at the cap of 2, got %d", capped.Attempts)
	}
	if !strings.Contains(capped.LastError, "after 2 attempts") {
		t.Fatalf("flag reason should name the capped attempt count, got %q", capped.LastError)
	}
	flagged := notifier.flaggedIDs()
	if len(flagged) != 1 || flagged[0] != record.ID {
		t.Fatalf("expected flagged notification for %s, got %v", record.ID, flagged)
	}
}

func TestFlaggedRecordsExcludedUntilRetried(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, _ := newTestEngine(t, stub)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "pothole", "flag me")
	if err := store.MarkFlagged(ctx, record.ID, "manual review"); err != nil {
		t.Fatalf("flag record: %v", err)
	}

	engine.drain(ctx)
	if calls := stub.SubmitCalls(); calls != 0 {
		t.Fatalf("flagged record must not be drained, got %d calls", calls)
	}

	if _, err := store.RetryFlagged(ctx, record.ID); err != nil {
		t.Fatalf("retry flagged: %v", err)
	}
	engine.drain(ctx)

	if got := statusOf(t, store, record.ID); got != queue.StatusSynced {
		t.Fatalf("expected retried record delivered, got %s", got)
	}
}

func TestWorkerDrainsOnRequest(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, store, _ := newTestEngine(t, stub)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "pothole", "deliver via worker")

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	defer engine.Stop()

	engine.RequestSync()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if statusOf(t, store, record.ID) == queue.StatusSynced {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for worker drain")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartTwiceFails(t *testing.T) {
	stub := testsupport.NewStubBackend(t)
	engine, _, _ := newTestEngine(t, stub)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	defer engine.Stop()

	if err := engine.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
