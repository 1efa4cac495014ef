package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/yarad/libs/go/core/otelinit"
)

// maxDelay caps the exponential growth of the backoff.
const maxDelay = 60 * time.Second

// Retry executes fn with exponential backoff (base delay) + full jitter.
// delay acts as initial backoff; grows exponentially (x2) until attempts exhausted.
// Jitter: random duration in [0, currentDelay]. op labels the emitted metrics.
func Retry[T any](ctx context.Context, op string, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	cur := delay
	var lastErr error
	meter := otelinit.Meter()
	attrs := metric.WithAttributes(attribute.String("op", op))
	attemptCounter, _ := meter.Int64Counter("yarad_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("yarad_retry_success_total")
	failCounter, _ := meter.Int64Counter("yarad_retry_fail_total")
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1, attrs)
		if err == nil {
			successCounter.Add(ctx, 1, attrs)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > maxDelay {
			cur = maxDelay
		}
		// full jitter
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1, attrs)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1, attrs)
	return zero, lastErr
}
