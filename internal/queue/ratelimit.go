// Package queue runs advice jobs: submission, the worker pool with its
// rate limiter, and terminal-state housekeeping.
package queue

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow grants at most limit job starts per window. Excess callers
// wait in arrival order rather than being rejected. A granted start is
// counted for the full window regardless of how the job ends.
type SlidingWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	starts  []time.Time
	waiters []chan struct{}
	timer   *time.Timer
	now     func() time.Time
}

// NewSlidingWindow builds a limiter allowing limit starts per window.
// The original service ran 10 starts per minute.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire blocks until a start slot is granted or ctx is done. Callers are
// served strictly in Acquire order.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.pruneLocked()
	if len(l.waiters) == 0 && len(l.starts) < l.limit {
		l.starts = append(l.starts, l.now())
		l.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.scheduleWakeLocked()
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		l.abandon(ch)
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// InFlight returns how many starts currently count against the window.
func (l *SlidingWindow) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	return len(l.starts)
}

// pruneLocked drops starts older than the window.
func (l *SlidingWindow) pruneLocked() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
}

// scheduleWakeLocked arms the timer for the moment the oldest start ages
// out of the window.
func (l *SlidingWindow) scheduleWakeLocked() {
	if len(l.waiters) == 0 || len(l.starts) == 0 {
		return
	}
	delay := l.starts[0].Add(l.window).Sub(l.now())
	if delay < 0 {
		delay = 0
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(delay, l.wake)
}

// wake hands freed slots to waiters in FIFO order.
func (l *SlidingWindow) wake() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	for len(l.waiters) > 0 && len(l.starts) < l.limit {
		ch := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.starts = append(l.starts, l.now())
		close(ch)
	}
	l.scheduleWakeLocked()
}

// abandon removes a waiter whose context expired before a slot freed.
func (l *SlidingWindow) abandon(ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}
