package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Limiter = (*MemoryLimiter)(nil)

// MemoryLimiter is a sliding window limiter held in process memory.
// Limits are per process, so it only suits single instance deployments.
type MemoryLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter allows max requests per key within any window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		times:  make(map[string][]time.Time),
		max:    max,
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.times[key]
	i := 0
	for _, t := range recent {
		if t.After(cutoff) {
			recent[i] = t
			i++
		}
	}
	recent = recent[:i]

	if len(recent) >= l.max {
		l.times[key] = recent
		return false, nil
	}

	l.times[key] = append(recent, now)
	return true, nil
}

// Sweep drops keys with no requests inside the window.
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, recent := range l.times {
		if len(recent) == 0 || !recent[len(recent)-1].After(cutoff) {
			delete(l.times, key)
		}
	}
}
