package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"postbox/internal/config"
	"postbox/internal/logging"
	"postbox/internal/services"
)

// Event is a connectivity transition, delivered once per edge.
type Event struct {
	Online bool
	At     time.Time
}

// ProbeFunc checks backend reachability. A nil error means reachable.
type ProbeFunc func(ctx context.Context) error

// Monitor watches backend reachability with a periodic probe and publishes
// one event per connectivity edge. The probe is a hint only: delivery
// attempts report their outcome back through ReportFailure/ReportSuccess,
// which is the authoritative signal.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	debounce time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	online     bool
	lastChange time.Time
	subs       []chan Event
	quit       chan struct{}
	running    bool
	wg         sync.WaitGroup
	kick       chan struct{}
}

// New constructs a monitor probing the given URL on the configured cadence.
func New(cfg *config.Config, probeURL string, logger *slog.Logger) *Monitor {
	timeout := time.Duration(cfg.Sync.ProbeTimeout) * time.Second
	client := &http.Client{Timeout: timeout}
	return NewWithProbe(cfg, httpProbe(client, probeURL), logger)
}

// NewWithProbe constructs a monitor with a custom probe (used in tests).
func NewWithProbe(cfg *config.Config, probe ProbeFunc, logger *slog.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: time.Duration(cfg.Sync.ProbeInterval) * time.Second,
		debounce: time.Duration(cfg.Sync.DebounceSeconds) * time.Second,
		logger:   logging.NewComponentLogger(logger, "netmon"),
		kick:     make(chan struct{}, 1),
	}
}

func httpProbe(client *http.Client, url string) ProbeFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		// Any HTTP answer proves the backend is reachable; app-level
		// errors are the delivery path's concern.
		return nil
	}
}

// Start launches the probe loop. The first probe runs immediately so the
// initial state reflects reality rather than defaulting to offline.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("network monitor already running")
	}
	m.quit = make(chan struct{})
	m.running = true
	quit := m.quit
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx, quit)
	return nil
}

// Stop shuts down the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	m.quit = nil
	m.running = false
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context, quit chan struct{}) {
	defer m.wg.Done()

	m.runProbe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			m.runProbe(ctx)
		case <-m.kick:
			m.runProbe(ctx)
		}
	}
}

func (m *Monitor) runProbe(ctx context.Context) {
	err := m.probe(ctx)
	if err != nil {
		m.setOnline(false, "probe failed")
		return
	}
	m.setOnline(true, "probe succeeded")
}

// ProbeNow requests an immediate probe outside the regular cadence.
func (m *Monitor) ProbeNow() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Online reports the current connectivity hint.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving one event per connectivity edge.
// The channel is buffered; a slow consumer sees only the latest edge.
func (m *Monitor) Subscribe() <-chan Event {
	ch := make(chan Event, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// ReportFailure feeds a delivery failure back into the monitor. Transport
// failures flip the state to offline immediately; application errors do not.
func (m *Monitor) ReportFailure(err error) {
	if !services.IsTransient(err) {
		return
	}
	m.setOnline(false, "request failure")
}

// ReportSuccess feeds a successful delivery back into the monitor.
func (m *Monitor) ReportSuccess() {
	m.setOnline(true, "request success")
}

func (m *Monitor) setOnline(online bool, reason string) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	// Flapping guard: hold an offline state until the debounce window has
	// passed, so a blinking link does not trigger a drain storm. Offline
	// edges always pass through; missing a real outage is worse than a
	// delayed wakeup.
	if online && m.debounce > 0 && now.Sub(m.lastChange) < m.debounce {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.lastChange = now
	subs := make([]chan Event, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("connectivity changed",
		logging.Bool("online", online),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "connectivity_change"),
	)

	event := Event{Online: online, At: now}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop the stale edge so the latest one can land.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}
