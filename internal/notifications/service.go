package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postbox/internal/config"
)

const userAgent = "Postbox-Go/0.1.0"

// Service defines the notification surface exposed to the sync engine and
// daemon components.
type Service interface {
	NotifySyncCompleted(ctx context.Context, delivered, failed int, duration time.Duration) error
	NotifyRecordFlagged(ctx context.Context, recordID, reason string) error
	NotifyStorageError(ctx context.Context, err error) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		sendSync:    cfg.Notifications.Sync,
		sendFlagged: cfg.Notifications.Flagged,
		sendErrors:  cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	sendSync    bool
	sendFlagged bool
	sendErrors  bool
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, delivered, failed int, duration time.Duration) error {
	if !n.sendSync {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Postbox - Sync Complete"
		message = fmt.Sprintf("Delivered %d submissions in %s", delivered, durationText)
	} else {
		title = "Postbox - Sync Complete (with errors)"
		message = fmt.Sprintf("Delivered %d submissions, %d still pending after %s", delivered, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"postbox", "sync", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecordFlagged(ctx context.Context, recordID, reason string) error {
	if !n.sendFlagged {
		return nil
	}
	recordID = strings.TrimSpace(recordID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "rejected by intake backend"
	}
	data := payload{
		title:    "Postbox - Submission Flagged",
		message:  fmt.Sprintf("Submission %s needs review: %s", recordID, reason),
		tags:     []string{"postbox", "flagged", "review"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStorageError(ctx context.Context, err error) error {
	if !n.sendErrors {
		return nil
	}
	message := "unknown"
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Postbox - Storage Error",
		message:  fmt.Sprintf("Local queue storage problem: %s", message),
		tags:     []string{"postbox", "storage", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Postbox - Error",
		message:  builder.String(),
		tags:     []string{"postbox", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Postbox - Test",
		message:  "Notification system test",
		tags:     []string{"postbox", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyRecordFlagged(context.Context, string, string) error          { return nil }
func (noopService) NotifyStorageError(context.Context, error) error                    { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
