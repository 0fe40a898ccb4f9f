package syncer

import "time"

// DrainSummary captures the outcome of one drain pass.
type DrainSummary struct {
	DrainID   string
	Started   time.Time
	Duration  time.Duration
	Attempted int
	Delivered int
	Failed    int
	Flagged   int
}

// Draining reports whether a drain pass is currently running.
func (e *Engine) Draining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// LastDrain returns the most recent completed drain summary, if any.
func (e *Engine) LastDrain() (DrainSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return DrainSummary{}, false
	}
	return *e.last, true
}

// LastError returns the most recent storage failure observed by the worker.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
