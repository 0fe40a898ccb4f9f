package syncer

import (
	"context"
	"errors"
	"time"

	"postbox/internal/logging"
	"postbox/internal/netmon"
)

// Start launches the drain worker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("sync engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	events := e.monitor.Subscribe()

	e.wg.Add(1)
	go e.run(runCtx, events)
	return nil
}

// Stop terminates the drain worker and waits for an in-flight drain to wind
// down.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, events <-chan netmon.Event) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if !event.Online {
				continue
			}
			e.logger.Info("connectivity restored, draining queue",
				logging.String(logging.FieldEventType, "drain_trigger"),
				logging.String("trigger", "online_edge"),
			)
			e.drain(ctx)
		case <-ticker.C:
			if !e.monitor.Online() {
				continue
			}
			e.drain(ctx)
		case <-e.trigger:
			// Manual requests are best-effort. RequestSync already kicked
			// a probe, so if the backend is back the online edge follows.
			if !e.monitor.Online() {
				continue
			}
			e.drain(ctx)
		}
	}
}
