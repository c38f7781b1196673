package inference

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token-bucket limit per remote service (agent id).
// A zealous background pipeline must not starve the foreground path of
// backend capacity.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
	mu       sync.RWMutex
}

// NewRateLimiter creates a limiter with a shared default of requestsPerMinute
// for services without their own registration.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		fallback: newMinuteLimiter(requestsPerMinute),
	}
}

// RegisterService sets a dedicated limit for one service.
func (r *RateLimiter) RegisterService(service string, requestsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[service] = newMinuteLimiter(requestsPerMinute)
}

// Wait blocks until the service may issue another request, or until ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, service string) error {
	return r.limiterFor(service).Wait(ctx)
}

// Allow reports whether the service may issue a request right now.
func (r *RateLimiter) Allow(service string) bool {
	return r.limiterFor(service).Allow()
}

func (r *RateLimiter) limiterFor(service string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.limiters[service]; ok {
		return l
	}
	return r.fallback
}

func newMinuteLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	rps := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute / 6
	if burst < 2 {
		burst = 2
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
