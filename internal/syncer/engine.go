package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"postbox/internal/config"
	"postbox/internal/logging"
	"postbox/internal/netmon"
	"postbox/internal/notifications"
	"postbox/internal/queue"
)

// Submitter is the remote intake surface the engine drains against.
// *civicapi.Client satisfies it; tests substitute scripted fakes.
type Submitter interface {
	UploadAttachment(ctx context.Context, data []byte, filename, mediaType string) (string, error)
	CreateSubmission(ctx context.Context, payload queue.Payload) (queue.Receipt, error)
}

// Engine drains the local queue against the intake backend. A single worker
// goroutine owns all delivery; triggers from connectivity edges, the periodic
// ticker, and explicit sync requests coalesce onto one channel so at most one
// drain runs at a time.
type Engine struct {
	cfg      *config.Config
	store    *queue.Store
	client   Submitter
	monitor  *netmon.Monitor
	notifier notifications.Service
	logger   *slog.Logger

	interval    time.Duration
	maxAttempts int
	pruneAge    time.Duration

	trigger chan struct{}

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	last     *DrainSummary
	draining bool
}

// New constructs a sync engine. The notifier may be a noop service.
func New(cfg *config.Config, store *queue.Store, client Submitter, monitor *netmon.Monitor, notifier notifications.Service, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		store:       store,
		client:      client,
		monitor:     monitor,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "syncer"),
		interval:    time.Duration(cfg.Sync.SyncInterval) * time.Second,
		maxAttempts: cfg.Sync.MaxAttempts,
		pruneAge:    time.Duration(cfg.Sync.PruneAgeDays) * 24 * time.Hour,
		trigger:     make(chan struct{}, 1),
	}
}

// RequestSync asks the worker for a drain outside the regular cadence.
// Requests made while a drain is pending coalesce into one.
func (e *Engine) RequestSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
	if e.monitor != nil {
		e.monitor.ProbeNow()
	}
}
