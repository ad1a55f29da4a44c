package adapter

import (
	"context"
	"time"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

// ResilientOptions tunes a Resilient wrapper.
type ResilientOptions struct {
	Backoff resilience.Backoff
	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
}

// Resilient retries transient fetch failures and routes every fetch
// through a circuit breaker shared across runs.
type Resilient struct {
	inner   Adapter
	breaker *resilience.Breaker
	opts    ResilientOptions
}

// NewResilient wraps a. breaker may be nil.
func NewResilient(a Adapter, breaker *resilience.Breaker, opts ResilientOptions) *Resilient {
	return &Resilient{inner: a, breaker: breaker, opts: opts}
}

// Name returns the wrapped adapter's name.
func (r *Resilient) Name() string { return r.inner.Name() }

// Fetch calls the wrapped adapter with retries inside the breaker.
func (r *Resilient) Fetch(ctx context.Context, season, week int) ([]model.RawDataRecord, error) {
	var out []model.RawDataRecord
	call := func(ctx context.Context) error {
		recs, err := resilience.RetryValue(ctx, r.opts.Backoff, r.inner.Name(), func(ctx context.Context) ([]model.RawDataRecord, error) {
			if r.opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
				defer cancel()
			}
			return r.inner.Fetch(ctx, season, week)
		})
		out = recs
		return err
	}

	var err error
	if r.breaker == nil {
		err = call(ctx)
	} else {
		err = r.breaker.Call(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ping forwards to the wrapped adapter.
func (r *Resilient) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx)
}
