package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"postbox/internal/queue"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrValidation, "civicapi", "submit", "backend returned 422", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "civicapi: submit") {
		t.Fatalf("expected component context in message, got %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "civicapi", "upload", "", errors.New("boom"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestFailureStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want queue.Status
	}{
		{"validation flags", Wrap(ErrValidation, "c", "o", "m", nil), queue.StatusFlagged},
		{"configuration flags", Wrap(ErrConfiguration, "c", "o", "m", nil), queue.StatusFlagged},
		{"transient requeues", Wrap(ErrTransient, "c", "o", "m", nil), queue.StatusQueued},
		{"timeout requeues", Wrap(ErrTimeout, "c", "o", "m", nil), queue.StatusQueued},
		{"unknown requeues", errors.New("mystery"), queue.StatusQueued},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FailureStatus(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Wrap(ErrTimeout, "c", "o", "m", nil)) {
		t.Fatal("timeout should be transient")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded should be transient")
	}
	if IsTransient(Wrap(ErrValidation, "c", "o", "m", nil)) {
		t.Fatal("validation must not be transient")
	}
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
}
