package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// LoginLimiter is a token bucket per client IP. A rate of zero disables it.
type LoginLimiter struct {
	mu      sync.Mutex
	perMin  int
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLoginLimiter(perMinute int) *LoginLimiter {
	return &LoginLimiter{
		perMin:  perMinute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one attempt for key.
func (l *LoginLimiter) Allow(key string) bool {
	if l == nil || l.perMin <= 0 {
		return true
	}
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.buckets[key] = b
	}
	b.seen = now
	l.evict(now)
	return b.lim.AllowN(now, 1)
}

// evict drops buckets idle for longer than limiterIdleTTL. Caller holds mu.
func (l *LoginLimiter) evict(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > limiterIdleTTL {
			delete(l.buckets, k)
		}
	}
}
