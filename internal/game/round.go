package game

import (
	"sync"
	"time"
)

// Round drives the answering window for one question: an immediate tick
// with the initial value, one tick per elapsed second, and a single close
// callback when the countdown reaches zero. Opening a new countdown while
// one is active cancels the previous one without invoking its close
// callback. Close is idempotent.
type Round struct {
	mu       sync.Mutex
	interval time.Duration
	active   chan struct{} // closed to cancel the current countdown
}

// NewRound returns a coordinator ticking once per second.
func NewRound() *Round {
	return &Round{interval: time.Second}
}

// NewRoundWithInterval shortens the tick interval, used by tests.
func NewRoundWithInterval(interval time.Duration) *Round {
	return &Round{interval: interval}
}

// Open starts a countdown of duration seconds. onTick receives the seconds
// left, starting immediately with the full duration. onClose runs exactly
// once when the countdown expires, unless the round is closed or reopened
// first.
func (r *Round) Open(duration int, onTick func(secondsLeft int), onClose func()) {
	r.mu.Lock()
	if r.active != nil {
		close(r.active)
	}
	cancel := make(chan struct{})
	r.active = cancel
	r.mu.Unlock()

	go r.run(duration, cancel, onTick, onClose)
}

func (r *Round) run(duration int, cancel chan struct{}, onTick func(int), onClose func()) {
	if onTick != nil {
		onTick(duration)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	left := duration
	for left > 0 {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			left--
			if onTick != nil {
				onTick(left)
			}
		}
	}

	// The countdown may have been canceled between the last tick and here;
	// only the still-active run may fire its close callback.
	r.mu.Lock()
	expired := r.active == cancel
	if expired {
		r.active = nil
	}
	r.mu.Unlock()

	if expired && onClose != nil {
		onClose()
	}
}

// Close cancels any active countdown without invoking its close callback.
func (r *Round) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		close(r.active)
		r.active = nil
	}
}

// Active reports whether a countdown is currently running.
func (r *Round) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}
