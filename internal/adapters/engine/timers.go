package engine

import (
	"time"

	"github.com/eleven-am/loom/internal/domain"
)

// armTimer re-enqueues an execution at the given instant, replacing any
// timer already armed for it.
func (e *Engine) armTimer(id string, at time.Time) {
	delay := at.Sub(e.clock.Now())
	if delay < 0 {
		delay = 0
	}

	e.stopTimer(id)

	timer := e.clock.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, id)
		e.mu.Unlock()
		e.logger.Debug("execution timer fired", "execution_id", id)
		e.enqueue(id)
	})

	if delay > 0 {
		e.mu.Lock()
		e.timers[id] = timer
		e.mu.Unlock()
	}

	e.logger.Debug("execution timer armed", "execution_id", id, "at", at, "delay", delay)
}

func (e *Engine) stopTimer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) stopAllTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// wakeAt returns the earliest instant an idle execution needs attention:
// a wait deadline or a pending retry.
func wakeAt(deadlines ...*time.Time) *time.Time {
	var earliest *time.Time
	for _, d := range deadlines {
		if d != nil && (earliest == nil || d.Before(*earliest)) {
			earliest = d
		}
	}
	return earliest
}

func waitUntil(w *domain.WaitCondition) *time.Time {
	if w == nil {
		return nil
	}
	return w.Until
}
