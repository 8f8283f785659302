package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key, e.g. per client IP.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity int
	refill   rate.Limit
	idleTTL  time.Duration
	lastGC   time.Time
}

// New returns a limiter allowing bursts of capacity and refillPerSec tokens
// per second per key. Buckets idle for longer than idleTTL are dropped.
func New(capacity int, refillPerSec float64, idleTTL time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Limiter{
		m:        make(map[string]*bucket),
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		idleTTL:  idleTTL,
		lastGC:   time.Now(),
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.refill, l.capacity)}
		l.m[key] = b
	}
	b.lastSeen = now
	if now.Sub(l.lastGC) > l.idleTTL {
		l.gc(now)
	}
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// RetryAfter is the whole number of seconds until one token refills.
func (l *Limiter) RetryAfter() int {
	if l.refill <= 0 {
		return 60
	}
	secs := int(1/float64(l.refill) + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) gc(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.m, k)
		}
	}
	l.lastGC = now
}
