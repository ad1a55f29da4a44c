package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls retries with exponential delay and jitter.
type Backoff struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps any single delay.
	Max time.Duration
	// Multiplier scales the delay after each retry.
	Multiplier float64
	// Jitter is the fraction of each delay randomized in both directions.
	Jitter float64
	// ShouldRetry overrides Retryable when set.
	ShouldRetry func(error) bool
}

// DefaultBackoff matches adapter fetch defaults: three tries starting at one
// second and doubling.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Base:       time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Base <= 0 {
		b.Base = d.Base
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.ShouldRetry == nil {
		b.ShouldRetry = Retryable
	}
	return b
}

// Delay returns the wait before retry number n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(n))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(0, d))
}

// Retry runs fn until it succeeds, returns a non-retryable error, exhausts
// b.Attempts, or ctx ends. name labels the retry log lines.
func Retry(ctx context.Context, b Backoff, name string, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, b, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for functions that return a value.
func RetryValue[T any](ctx context.Context, b Backoff, name string, fn func(context.Context) (T, error)) (T, error) {
	b = b.withDefaults()
	var zero T
	var err error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.ShouldRetry(err) || attempt == b.Attempts-1 {
			return zero, err
		}

		delay := b.Delay(attempt)
		zap.L().Warn("resilience: retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.String("kind", string(Classify(err))),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}
