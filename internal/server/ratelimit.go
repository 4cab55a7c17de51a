package server

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxCallers bounds the number of per-caller buckets kept at once.
	DefaultMaxCallers = 10000
	// DefaultCallerIdle is how long an unused bucket is kept.
	DefaultCallerIdle = 10 * time.Minute
)

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-caller and a global token bucket. Per-caller
// buckets are dropped after DefaultCallerIdle without requests, and at most
// maxCallers are kept; when full the least recently seen bucket is evicted.
type RateLimiter struct {
	mu         sync.Mutex
	global     *rate.Limiter
	callers    map[string]*callerBucket
	perCaller  rate.Limit
	burst      int
	maxCallers int
	idle       time.Duration
	now        func() time.Time
}

// NewRateLimiter creates a limiter from requests per second. A zero rate
// disables that bucket.
func NewRateLimiter(globalRPS, perCallerRPS float64) *RateLimiter {
	return &RateLimiter{
		global:     newLimiter(globalRPS),
		callers:    make(map[string]*callerBucket),
		perCaller:  limitFor(perCallerRPS),
		burst:      burstFor(perCallerRPS),
		maxCallers: DefaultMaxCallers,
		idle:       DefaultCallerIdle,
		now:        time.Now,
	}
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// burstFor allows one second's worth of requests, at least one.
func burstFor(rps float64) int {
	return int(math.Max(1, math.Ceil(rps)))
}

func newLimiter(rps float64) *rate.Limiter {
	return rate.NewLimiter(limitFor(rps), burstFor(rps))
}

// Allow reports whether caller may make a request now. The caller's own
// bucket is checked first so a throttled caller never drains the global one.
func (rl *RateLimiter) Allow(caller string) bool {
	rl.mu.Lock()
	now := rl.now()
	b, ok := rl.callers[caller]
	if !ok {
		if len(rl.callers) >= rl.maxCallers {
			rl.evictLocked(now)
		}
		b = &callerBucket{limiter: rate.NewLimiter(rl.perCaller, rl.burst)}
		rl.callers[caller] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		return false
	}
	return rl.global.AllowN(now, 1)
}

// evictLocked drops idle buckets, then the least recently seen one if the
// map is still full.
func (rl *RateLimiter) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, b := range rl.callers {
		if now.Sub(b.lastSeen) > rl.idle {
			delete(rl.callers, k)
			continue
		}
		if oldestKey == "" || b.lastSeen.Before(oldest) {
			oldestKey, oldest = k, b.lastSeen
		}
	}
	if len(rl.callers) >= rl.maxCallers && oldestKey != "" {
		delete(rl.callers, oldestKey)
	}
}

// Callers returns the number of per-caller buckets held.
func (rl *RateLimiter) Callers() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.callers)
}
