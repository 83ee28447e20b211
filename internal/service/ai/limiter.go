package ai

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedCallers = 4096

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per caller. Each bucket holds limit
// tokens and refills fully over window.
type rateLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	callers map[string]*callerBucket
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window, now: time.Now, callers: make(map[string]*callerBucket)}
}

// Allow spends one token from key's bucket.
// A nil limiter or a non-positive limit allows everything.
func (l *rateLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.callers) > maxTrackedCallers {
		l.pruneLocked(now)
	}
	b, ok := l.callers[key]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.limit))
		b = &callerBucket{limiter: rate.NewLimiter(every, l.limit)}
		l.callers[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// pruneLocked drops callers idle for a whole window; their buckets are full
// again and a fresh one behaves the same.
func (l *rateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for key, b := range l.callers {
		if !b.lastSeen.After(cutoff) {
			delete(l.callers, key)
		}
	}
}
