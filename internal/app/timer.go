package app

import (
	"sync"
	"time"

	"quiz-attempt/internal/domain"
)

type timerState int

const (
	timerIdle timerState = iota
	timerRunning
	timerExpired
	timerCancelled
)

// Timer counts down to an absolute deadline. Remaining time is always derived from
// deadline - now, so delayed or dropped ticks never accumulate error.
type Timer struct {
	clock    Clock
	interval time.Duration

	mu        sync.Mutex
	state     timerState
	deadline  time.Time
	remaining time.Duration
	onExpire  []func()
	onTick    []func(time.Duration)
	stop      chan struct{}
}

// NewTimer builds a countdown that re-evaluates itself every interval (one second by default).
func NewTimer(clock Clock, interval time.Duration) *Timer {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{clock: clock, interval: interval}
}

// OnExpire registers a callback invoked at most once, from the timer goroutine.
func (t *Timer) OnExpire(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = append(t.onExpire, fn)
}

// OnTick registers a callback receiving the remaining time after each tick.
func (t *Timer) OnTick(fn func(time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = append(t.onTick, fn)
}

// Start begins the countdown from initial.
func (t *Timer) Start(initial time.Duration) error {
	return t.StartAt(t.clock.Now().Add(initial))
}

// StartAt begins the countdown towards an absolute deadline. A deadline in the past
// expires on the first evaluation.
func (t *Timer) StartAt(deadline time.Time) error {
	t.mu.Lock()
	if t.state != timerIdle {
		t.mu.Unlock()
		return domain.ErrTimerStarted
	}
	t.state = timerRunning
	t.deadline = deadline
	t.remaining = remainingUntil(deadline, t.clock.Now())
	t.stop = make(chan struct{})
	stop := t.stop
	ticker := t.clock.NewTicker(t.interval)
	t.mu.Unlock()

	go t.run(ticker, stop)
	return nil
}

// Cancel stops the countdown without firing expiry. Safe to call any number of times.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != timerRunning {
		return
	}
	t.state = timerCancelled
	close(t.stop)
}

// Remaining returns the time left, rounded up to whole seconds while running.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == timerRunning {
		t.remaining = minDuration(t.remaining, remainingUntil(t.deadline, t.clock.Now()))
	}
	return t.remaining
}

// Deadline returns the absolute deadline, zero before Start.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Expired reports whether expiry has fired.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == timerExpired
}

func (t *Timer) run(ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	if t.evaluate() {
		return
	}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if t.evaluate() {
				return
			}
		}
	}
}

// evaluate recomputes the remaining time and fires callbacks. It returns true once the
// countdown is over, either by expiry or cancellation.
func (t *Timer) evaluate() bool {
	t.mu.Lock()
	if t.state != timerRunning {
		t.mu.Unlock()
		return true
	}
	t.remaining = minDuration(t.remaining, remainingUntil(t.deadline, t.clock.Now()))
	remaining := t.remaining
	ticks := append([]func(time.Duration){}, t.onTick...)
	var expire []func()
	if remaining == 0 {
		t.state = timerExpired
		expire = append(expire, t.onExpire...)
	}
	t.mu.Unlock()

	for _, fn := range ticks {
		fn(remaining)
	}
	for _, fn := range expire {
		fn()
	}
	return remaining == 0
}

func remainingUntil(deadline, now time.Time) time.Duration {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	// round up so a slightly late tick still shows the full second
	if rem := left % time.Second; rem != 0 {
		left += time.Second - rem
	}
	return left
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
