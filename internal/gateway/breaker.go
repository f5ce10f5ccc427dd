package gateway

import (
	"sync"
	"time"
)

// breaker trips after a streak of consecutive failures and stays open
// until the cooldown passes. A single success resets the streak.
type breaker struct {
	mu       sync.Mutex
	streak   int
	maxs     int
	cooldown time.Duration
	openedAt time.Time
}

func newBreaker(maxStreak int, cooldown time.Duration) *breaker {
	return &breaker{maxs: maxStreak, cooldown: cooldown}
}

func (b *breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return false
	}
	if time.Since(b.openedAt) >= b.cooldown {
		// Half-open: allow traffic again, one more streak re-trips.
		b.openedAt = time.Time{}
		b.streak = 0
		return false
	}
	return true
}

func (b *breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak = 0
	b.openedAt = time.Time{}
}

// Failure records a failed call and reports whether the breaker just
// tripped open.
func (b *breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak++
	if b.streak >= b.maxs && b.openedAt.IsZero() {
		b.openedAt = time.Now()
		return true
	}
	return false
}
