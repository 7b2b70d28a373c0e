package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	invalidAttemptsPerMinute = 5
	visitorIdleTTL           = 5 * time.Minute
)

// InvalidAuthRateLimiter throttles callers that keep failing authentication.
// It is consulted only after a failed attempt, so valid traffic is never limited.
type InvalidAuthRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInvalidAuthRateLimiter allows 5 invalid attempts per minute per IP.
func NewInvalidAuthRateLimiter() *InvalidAuthRateLimiter {
	rl := newInvalidAuthRateLimiter(rate.Every(time.Minute/invalidAttemptsPerMinute), invalidAttemptsPerMinute)
	go rl.cleanup()
	return rl
}

func newInvalidAuthRateLimiter(limit rate.Limit, burst int) *InvalidAuthRateLimiter {
	return &InvalidAuthRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
	}
}

// Allow records an invalid attempt from ip and reports whether it is still
// within budget.
func (r *InvalidAuthRateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (r *InvalidAuthRateLimiter) cleanup() {
	ticker := time.NewTicker(visitorIdleTTL)
	for range ticker.C {
		r.evictIdle(time.Now())
	}
}

func (r *InvalidAuthRateLimiter) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ip, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(r.visitors, ip)
		}
	}
}
