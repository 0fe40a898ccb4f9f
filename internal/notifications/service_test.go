package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"postbox/internal/config"
	"postbox/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySyncCompleted(context.Background(), 3, 0, time.Minute); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "sync completed clean",
			notify: func(svc notifications.Service) error {
				return svc.NotifySyncCompleted(context.Background(), 4, 0, 90*time.Second)
			},
			expectTitle:   "Postbox - Sync Complete",
			expectMessage: "Delivered 4 submissions in 1m30s",
			expectTags:    "postbox,sync,completed",
		},
		{
			name: "sync completed with failures",
			notify: func(svc notifications.Service) error {
				return svc.NotifySyncCompleted(context.Background(), 2, 1, 10*time.Second)
			},
			expectTitle:   "Postbox - Sync Complete (with errors)",
			expectMessage: "Delivered 2 submissions, 1 still pending after 10s",
			expectTags:    "postbox,sync,completed",
		},
		{
			name: "record flagged",
			notify: func(svc notifications.Service) error {
				return svc.NotifyRecordFlagged(context.Background(), "f9e1", "invalid postal code")
			},
			expectTitle:    "Postbox - Submission Flagged",
			expectMessage:  "Submission f9e1 needs review: invalid postal code",
			expectTags:     "postbox,flagged,review",
			expectPriority: "high",
		},
		{
			name: "storage error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyStorageError(context.Background(), errors.New("disk full"))
			},
			expectTitle:    "Postbox - Storage Error",
			expectMessage:  "Local queue storage problem: disk full",
			expectTags:     "postbox,storage,alert",
			expectPriority: "high",
		},
		{
			name: "error with context",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("connection refused"), "sync")
			},
			expectTitle:    "Postbox - Error",
			expectMessage:  "Error with sync: connection refused",
			expectTags:     "postbox,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Sync = false
	cfg.Notifications.Flagged = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifySyncCompleted(ctx, 1, 0, time.Second); err != nil {
		t.Fatalf("expected suppressed sync notification to return nil, got %v", err)
	}
	if err := svc.NotifyRecordFlagged(ctx, "abc", "rejected"); err != nil {
		t.Fatalf("expected suppressed flagged notification to return nil, got %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "sync"); err != nil {
		t.Fatalf("expected suppressed error notification to return nil, got %v", err)
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx ntfy response")
	}
}
