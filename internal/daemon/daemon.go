package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"postbox/internal/config"
	"postbox/internal/logging"
	"postbox/internal/netmon"
	"postbox/internal/notifications"
	"postbox/internal/queue"
	"postbox/internal/syncer"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	monitor *netmon.Monitor
	engine  *syncer.Engine
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Online       bool
	Draining     bool
	Queue        queue.Stats
	LastDrain    *syncer.DrainSummary
	LastError    string
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, monitor *netmon.Monitor, engine *syncer.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || monitor == nil || engine == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, monitor, engine, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "postboxd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		monitor:  monitor,
		engine:   engine,
		logPath:  filepath.Join(cfg.Paths.LogDir, "postbox.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the network monitor and sync
// engine.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another postbox daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.monitor.Start(d.ctx); err != nil {
		d.teardownAfterStartFailure()
		return fmt.Errorf("start network monitor: %w", err)
	}
	if err := d.engine.Start(d.ctx); err != nil {
		d.monitor.Stop()
		d.teardownAfterStartFailure()
		return fmt.Errorf("start sync engine: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("postbox daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) teardownAfterStartFailure() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.engine.Stop()
	d.monitor.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("postbox daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Enqueue captures a submission locally and nudges the sync engine. Capture
// succeeds regardless of connectivity.
func (d *Daemon) Enqueue(ctx context.Context, payload queue.Payload, att *queue.NewAttachment) (*queue.Record, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	record, err := d.store.Enqueue(ctx, payload, att)
	if err != nil {
		return nil, err
	}
	d.logger.Info("submission queued",
		logging.String(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldIntent, record.Payload.Intent),
		logging.Bool("attachment", record.HasAttachment()),
	)
	if d.running.Load() {
		d.engine.RequestSync()
	}
	return record, nil
}

// RequestSync asks for an immediate drain attempt.
func (d *Daemon) RequestSync() error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	d.engine.RequestSync()
	return nil
}

// ListQueue returns records filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Record, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetRecord returns a single record by id.
func (d *Daemon) GetRecord(ctx context.Context, id string) (*queue.Record, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// ClearQueue removes records, optionally restricted to the given statuses.
func (d *Daemon) ClearQueue(ctx context.Context, statuses []queue.Status) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.Clear(ctx, statuses...)
}

// PruneSynced removes delivered records older than the given age.
func (d *Daemon) PruneSynced(ctx context.Context, olderThan time.Duration) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	if olderThan < 0 {
		return 0, errors.New("prune age must not be negative")
	}
	return d.store.PruneSynced(ctx, time.Now().Add(-olderThan))
}

// RetryFlagged resets flagged records (optionally a subset) back to queued.
func (d *Daemon) RetryFlagged(ctx context.Context, ids []string) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	count, err := d.store.RetryFlagged(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count > 0 && d.running.Load() {
		d.engine.RequestSync()
	}
	return count, nil
}

// QueueStats returns aggregate record counts.
func (d *Daemon) QueueStats(ctx context.Context) (queue.Stats, error) {
	if d.store == nil {
		return queue.Stats{}, errors.New("queue store unavailable")
	}
	return d.store.CountByStatus(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	if d.store == nil {
		return queue.DatabaseHealth{}, errors.New("queue store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Online:       d.monitor.Online(),
		Draining:     d.engine.Draining(),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.store.CountByStatus(ctx); err == nil {
		status.Queue = stats
	}
	if summary, ok := d.engine.LastDrain(); ok {
		status.LastDrain = &summary
	}
	if err := d.engine.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}
