// Package resilience wraps adapter fetches with classified errors, retry
// with backoff and per-adapter circuit breakers.
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of one circuit.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Threshold is the consecutive failure count that opens the circuit.
	Threshold int
	// Cooldown is how long an open circuit waits before one probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig opens after five straight failures for one minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: time.Minute}
}

// Breaker is a consecutive-failure circuit breaker. Context cancellation
// does not count as a failure.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	d := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = d.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = d.Cooldown
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, state: StateClosed}
}

// Call runs fn unless the circuit is open.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State reports the current state, showing an open circuit whose cooldown
// has passed as half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.failures = 0
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return eris.Wrapf(ErrCircuitOpen, "resilience: %s", b.name)
		}
		b.setState(StateHalfOpen)
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || errors.Is(err, context.Canceled) {
		if err == nil {
			b.failures = 0
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to BreakerState) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: circuit state change",
		zap.String("breaker", b.name),
		zap.String("from", string(b.state)),
		zap.String("to", string(to)),
	)
	b.state = to
}

// Breakers holds one Breaker per adapter name.
type Breakers struct {
	cfg BreakerConfig
	now func() time.Time

	mu  sync.Mutex
	set map[string]*Breaker
}

// NewBreakers creates an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, now: time.Now, set: make(map[string]*Breaker)}
}

// WithClock sets the clock used by breakers created after the call.
func (s *Breakers) WithClock(now func() time.Time) *Breakers {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Get returns the breaker for name, creating it on first use.
func (s *Breakers) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.set[name]
	if !ok {
		b = NewBreaker(name, s.cfg)
		b.now = s.now
		s.set[name] = b
	}
	return b
}

// BreakerStatus is one entry of a Breakers snapshot.
type BreakerStatus struct {
	Name     string       `json:"name"`
	State    BreakerState `json:"state"`
	Failures int          `json:"failures"`
}

// Snapshot lists every breaker sorted by name.
func (s *Breakers) Snapshot() []BreakerStatus {
	s.mu.Lock()
	names := make([]string, 0, len(s.set))
	for n := range s.set {
		names = append(names, n)
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make([]BreakerStatus, 0, len(names))
	for _, n := range names {
		b := s.Get(n)
		out = append(out, BreakerStatus{Name: n, State: b.State(), Failures: b.Failures()})
	}
	return out
}
