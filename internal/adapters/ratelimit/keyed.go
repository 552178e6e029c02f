// Package ratelimit keeps one token bucket per key (client IP, account ID).
package ratelimit

import (
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/time/rate"
)

// idleTTL is how long an unused key keeps its bucket.
const idleTTL = 10 * time.Minute

// Keyed hands out token buckets by key. Idle buckets are evicted by the cache.
type Keyed struct {
	mu       sync.Mutex
	limiters *otter.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewKeyed allows each key `limit` events per second with bursts of `burst`.
// PRE: limit > 0, burst > 0
func NewKeyed(limit rate.Limit, burst int) *Keyed {
	return &Keyed{
		limiters: otter.Must(&otter.Options[string, *rate.Limiter]{
			MaximumSize:      100_000,
			ExpiryCalculator: otter.ExpiryAccessing[string, *rate.Limiter](idleTTL),
		}),
		limit: limit,
		burst: burst,
	}
}

// PerMinute is a convenience for "n events per minute, burst n".
// n <= 0 yields a limiter that allows everything.
func PerMinute(n int) *Keyed {
	if n <= 0 {
		return NewKeyed(rate.Inf, 1)
	}
	return NewKeyed(rate.Every(time.Minute/time.Duration(n)), n)
}

// Allow reports whether key may proceed now, consuming a token if so.
// PRE: key is non-empty
func (k *Keyed) Allow(key string) bool {
	return k.limiter(key).Allow()
}

func (k *Keyed) limiter(key string) *rate.Limiter {
	if l, ok := k.limiters.GetIfPresent(key); ok {
		return l
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.limiters.GetIfPresent(key); ok {
		return l
	}
	l := rate.NewLimiter(k.limit, k.burst)
	k.limiters.Set(key, l)
	return l
}
