package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepEvery = 256

// KeyLimiter keeps one token bucket per key and drops buckets that sat idle
// longer than idleTTL.
type KeyLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*bucket
	calls uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerMinute allows n events per key per minute with a burst of n.
// It returns nil, which allows everything, when n is not positive.
func PerMinute(n int) *KeyLimiter {
	if n <= 0 {
		return nil
	}
	return New(rate.Every(time.Minute/time.Duration(n)), n, 10*time.Minute)
}

// New creates a key-based limiter; returns nil if args are invalid.
func New(limit rate.Limit, burst int, idleTTL time.Duration) *KeyLimiter {
	if limit <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyLimiter{
		limit:   limit,
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*bucket),
	}
}

// Allow reports whether one event for key may proceed at now.
func (l *KeyLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}
	return allowed
}

// Len returns the number of tracked keys.
func (l *KeyLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (l *KeyLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.byKey {
		if b.lastSeen.Before(cutoff) {
			delete(l.byKey, k)
		}
	}
}
