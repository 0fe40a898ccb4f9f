package testsupport

import (
	"context"
	"testing"

	"postbox/internal/config"
	"postbox/internal/queue"
)

// MustOpenStore opens a queue store for tests and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}

// MustEnqueue inserts a minimal queued record and returns it.
func MustEnqueue(t testing.TB, store *queue.Store, intent, text string) *queue.Record {
	t.Helper()

	record, err := store.Enqueue(context.Background(), queue.Payload{Intent: intent, Text: text}, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return record
}
