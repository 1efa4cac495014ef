package resilience

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/yarad/libs/go/core/otelinit"
)

// RateLimiter is a token bucket. Tokens refill lazily on each Allow call.
type RateLimiter struct {
	mu         sync.Mutex
	name       string
	capacity   float64
	fillRate   float64 // tokens per second
	available  float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter returns a full bucket of capacity tokens refilled at
// fillRate tokens per second. name labels the drop counter.
func NewRateLimiter(name string, capacity int64, fillRate float64) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		name:       name,
		capacity:   float64(capacity),
		fillRate:   fillRate,
		available:  float64(capacity),
		lastRefill: now,
		now:        time.Now,
	}
}

// Allow consumes one token if available.
func (r *RateLimiter) Allow() bool {
	return r.AllowN(1)
}

// AllowN consumes n tokens if available.
func (r *RateLimiter) AllowN(n int64) bool {
	if n <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill(r.now())
	if float64(n) <= r.available {
		r.available -= float64(n)
		return true
	}
	counter, _ := otelinit.Meter().Int64Counter("yarad_ratelimiter_drops_total")
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("limiter", r.name)))
	return false
}

func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	r.available = min(r.capacity, r.available+elapsed*r.fillRate)
	r.lastRefill = now
}
