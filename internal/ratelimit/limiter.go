package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/marketlens/internal/clock"
)

// Limiter serializes access to the upstream provider: grants are spaced at
// least minInterval apart across all symbols and callers.
type Limiter struct {
	minInterval time.Duration
	clock       clock.Clock

	mu        sync.Mutex
	last      time.Time // most recent reserved grant time
	prev      time.Time // grant time before last, for rollback
	grants    int64
	totalWait time.Duration
}

// Stats summarizes limiter activity.
type Stats struct {
	Grants    int64
	TotalWait time.Duration
	LastGrant time.Time
}

// New creates a limiter. A nil clock means the wall clock.
func New(minInterval time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = clock.Real{}
	}
	return &Limiter{
		minInterval: minInterval,
		clock:       c,
	}
}

// Acquire blocks until the caller's grant time and returns the time spent
// waiting. The slot is reserved under the lock, so concurrent callers always
// receive distinct slots; the wait itself happens outside the lock.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	now := l.clock.Now()
	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(l.minInterval); next.After(slot) {
			slot = next
		}
	}
	l.prev, l.last = l.last, slot
	wait := slot.Sub(now)
	l.mu.Unlock()

	if wait > 0 {
		if err := l.clock.Sleep(ctx, wait); err != nil {
			l.release(slot)
			return 0, err
		}
	}

	l.mu.Lock()
	l.grants++
	l.totalWait += wait
	l.mu.Unlock()

	return wait, nil
}

// release gives back a reservation that was never used. Only the newest
// reservation can be rolled back; an older one has already been used as the
// base for someone else's slot.
func (l *Limiter) release(slot time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last.Equal(slot) {
		l.last = l.prev
	}
}

// MinInterval returns the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Grants:    l.grants,
		TotalWait: l.totalWait,
		LastGrant: l.last,
	}
}
