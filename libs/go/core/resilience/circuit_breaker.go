package resilience

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/yarad/libs/go/core/otelinit"
)

// BreakerState is the position of a CircuitBreaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// CircuitBreaker opens when the failure rate over a rolling window reaches a
// threshold, rejects calls for a cool-down period, then lets a limited number
// of probes through before closing again.
type CircuitBreaker struct {
	mu sync.Mutex

	name          string
	minSamples    int
	failureRate   float64
	halfOpenAfter time.Duration
	maxProbes     int

	state    BreakerState
	openedAt time.Time
	probes   int
	window   *slidingWindow
	now      func() time.Time
}

// NewCircuitBreaker builds a breaker over a window split into buckets.
// name labels the emitted state transition metrics.
func NewCircuitBreaker(name string, window time.Duration, buckets, minSamples int, failureRate float64, halfOpenAfter time.Duration, maxProbes int) *CircuitBreaker {
	if buckets <= 0 {
		buckets = 1
	}
	if maxProbes <= 0 {
		maxProbes = 1
	}
	failureRate = min(max(failureRate, 0), 1)
	return &CircuitBreaker{
		name:          name,
		minSamples:    minSamples,
		failureRate:   failureRate,
		halfOpenAfter: halfOpenAfter,
		maxProbes:     maxProbes,
		window:        newSlidingWindow(window, buckets),
		now:           time.Now,
	}
}

// State reports the current state without side effects.
func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Allow reports whether a call may proceed. An open breaker turns half-open
// once the cool-down has elapsed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateOpen:
		if c.now().Sub(c.openedAt) < c.halfOpenAfter {
			return false
		}
		c.transition(StateHalfOpen)
		c.probes = 0
		fallthrough
	case StateHalfOpen:
		if c.probes >= c.maxProbes {
			return false
		}
		c.probes++
	}
	return true
}

// Record feeds the outcome of an allowed call back into the breaker.
func (c *CircuitBreaker) Record(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	switch c.state {
	case StateClosed:
		c.window.add(now, success)
		total, failures := c.window.stats(now)
		if total >= c.minSamples && total > 0 && float64(failures)/float64(total) >= c.failureRate {
			c.open(now)
		}
	case StateHalfOpen:
		if !success {
			c.open(now)
			return
		}
		if c.probes >= c.maxProbes {
			c.window.reset()
			c.transition(StateClosed)
		}
	}
}

func (c *CircuitBreaker) open(now time.Time) {
	c.openedAt = now
	c.transition(StateOpen)
}

func (c *CircuitBreaker) transition(to BreakerState) {
	if c.state == to {
		return
	}
	c.state = to
	counter, _ := otelinit.Meter().Int64Counter("yarad_circuit_transitions_total")
	counter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", c.name),
		attribute.String("state", to.String()),
	))
}

// slidingWindow keeps success/failure counts in fixed time buckets. A bucket
// is cleared when it is reused for a later interval.
type slidingWindow struct {
	interval time.Duration
	data     []bucket
}

type bucket struct {
	epoch         int64
	success, fail int
}

func newSlidingWindow(size time.Duration, buckets int) *slidingWindow {
	interval := size / time.Duration(buckets)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &slidingWindow{interval: interval, data: make([]bucket, buckets)}
}

func (w *slidingWindow) epoch(now time.Time) int64 {
	return now.UnixNano() / int64(w.interval)
}

func (w *slidingWindow) add(now time.Time, success bool) {
	e := w.epoch(now)
	b := &w.data[e%int64(len(w.data))]
	if b.epoch != e {
		*b = bucket{epoch: e}
	}
	if success {
		b.success++
	} else {
		b.fail++
	}
}

func (w *slidingWindow) stats(now time.Time) (total, failures int) {
	oldest := w.epoch(now) - int64(len(w.data)) + 1
	for _, b := range w.data {
		if b.epoch < oldest {
			continue
		}
		total += b.success + b.fail
		failures += b.fail
	}
	return total, failures
}

func (w *slidingWindow) reset() {
	clear(w.data)
}
