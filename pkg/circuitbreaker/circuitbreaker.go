// Package circuitbreaker guards calls to an unreliable dependency. After a run
// of consecutive failures the breaker opens and rejects calls until a cool-down
// elapses, then admits a bounded number of probe calls.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when all half-open probe slots are taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejected reports whether err came from the breaker itself rather than
// from the guarded call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// StateChangeFunc is notified on every transition. It runs under the breaker
// lock and must not call back into the breaker.
type StateChangeFunc func(name string, from, to State)

// Config holds circuit breaker configuration.
type Config struct {
	Name string

	// FailureThreshold is the consecutive failure count that opens the
	// breaker. Default: 5
	FailureThreshold int

	// SuccessThreshold is the consecutive probe successes needed to close
	// a half-open breaker. Default: 1
	SuccessThreshold int

	// OpenTimeout is the cool-down before probes are admitted. Default: 30s
	OpenTimeout time.Duration

	// HalfOpenMaxCalls bounds concurrent probes. Default: 1
	HalfOpenMaxCalls int

	OnStateChange StateChangeFunc

	// IsFailure classifies errors. Context cancellation by the caller is
	// never counted. If nil, every other error is a failure.
	IsFailure func(error) bool

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

func defaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
		Now:              time.Now,
	}
}

// Option configures a breaker.
type Option func(*Config)

func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.OpenTimeout = d
		}
	}
}

func WithHalfOpenMaxCalls(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.HalfOpenMaxCalls = n
		}
	}
}

func WithOnStateChange(fn StateChangeFunc) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) {
		c.IsFailure = fn
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	State                State
	Requests             int
	Failures             int
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	OpenedAt             time.Time
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	generation uint64
	openedAt   time.Time
	inFlight   int
	consecFail int
	consecOK   int
	requests   int
	failures   int
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	cfg := defaultConfig(name)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn when the breaker admits it and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(gen, err)
	return err
}

// Call is Execute for functions returning a value.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return 0, ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.inFlight >= b.cfg.HalfOpenMaxCalls {
			return 0, ErrTooManyRequests
		}
		b.inFlight++
	}
	return b.generation, nil
}

func (b *Breaker) record(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A result from before the last transition says nothing about the
	// current state.
	if gen != b.generation {
		return
	}
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.requests++

	if !b.isFailure(err) {
		b.consecFail = 0
		b.consecOK++
		if b.state == StateHalfOpen && b.consecOK >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	b.consecOK = 0
	b.consecFail++
	switch b.state {
	case StateClosed:
		if b.consecFail >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) isFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if b.cfg.IsFailure != nil {
		return b.cfg.IsFailure(err)
	}
	return true
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.generation++
	b.consecFail = 0
	b.consecOK = 0
	b.inFlight = 0
	if to == StateOpen {
		b.openedAt = b.cfg.Now()
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// elapsed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:                b.state,
		Requests:             b.requests,
		Failures:             b.failures,
		ConsecutiveFailures:  b.consecFail,
		ConsecutiveSuccesses: b.consecOK,
		OpenedAt:             b.openedAt,
	}
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.requests, b.failures = 0, 0
	b.consecFail, b.consecOK = 0, 0
}

func (b *Breaker) Name() string {
	return b.cfg.Name
}

// ProfileStoreBreaker returns the breaker guarding profile store reads.
// Lookups that miss are answers, not outages, so isMiss errors never trip it.
func ProfileStoreBreaker(threshold int, openTimeout time.Duration, halfOpenMax int, isMiss func(error) bool, onStateChange StateChangeFunc) *Breaker {
	return New(
		"profile-store",
		WithFailureThreshold(threshold),
		WithOpenTimeout(openTimeout),
		WithHalfOpenMaxCalls(halfOpenMax),
		WithOnStateChange(onStateChange),
		WithIsFailure(func(err error) bool {
			return isMiss == nil || !isMiss(err)
		}),
	)
}
