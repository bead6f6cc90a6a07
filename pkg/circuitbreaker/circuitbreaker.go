// Package circuitbreaker stops calls to an unhealthy dependency for a while
// after repeated failures, so callers can fall back without waiting on timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state - requests are allowed through.
	StateClosed State = iota
	// StateOpen is the failure state - requests are blocked.
	StateOpen
	// StateHalfOpen lets a limited number of probes through.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// Common errors.
var (
	// ErrCircuitOpen is returned when the circuit is open and requests are blocked.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is used up.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejected reports whether err was produced by the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies this circuit breaker in logs.
	Name string

	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes before closing.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// MaxHalfOpenRequests is the number of concurrent probes while half-open.
	MaxHalfOpenRequests int

	// OnStateChange is called with the breaker lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure decides whether an error counts against the dependency.
	// The default ignores context cancellation and deadline errors.
	IsFailure func(error) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
		IsFailure:           defaultIsFailure,
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*Config)

// WithFailureThreshold sets the failure threshold.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the success threshold.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithTimeout sets the open duration.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithMaxHalfOpenRequests sets the half-open probe budget.
func WithMaxHalfOpenRequests(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxHalfOpenRequests = n
		}
	}
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// WithIsFailure sets the failure classification.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) {
		if fn != nil {
			c.IsFailure = fn
		}
	}
}

// Counts holds the current counts for the circuit breaker.
type Counts struct {
	Requests             int
	Rejected             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	counts           Counts
	openedAt         time.Time
	halfOpenRequests int
}

// New creates a new CircuitBreaker with the given name and options.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}

	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.afterRequest(err, probe)

	return err
}

// beforeRequest checks if a request should be allowed and whether it is a probe.
func (cb *CircuitBreaker) beforeRequest() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return true, nil
		}
		cb.counts.Rejected++
		return false, ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.MaxHalfOpenRequests {
			cb.halfOpenRequests++
			return true, nil
		}
		cb.counts.Rejected++
		return false, ErrTooManyRequests

	default:
		return false, ErrCircuitOpen
	}
}

// afterRequest records the result of a request.
func (cb *CircuitBreaker) afterRequest(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++
	if probe && cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
		cb.halfOpenRequests--
	}

	if err != nil && cb.config.IsFailure(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// Any failed probe reopens the circuit.
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.halfOpenRequests = 0
	if newState == StateOpen {
		cb.openedAt = cb.now()
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns the current counts.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset resets the circuit breaker to its initial state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.counts = Counts{}
	cb.halfOpenRequests = 0
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// CacheBreaker returns a breaker tuned for an optional cache: it opens quickly
// and probes again soon, since every rejected call simply recomputes.
func CacheBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"aggregate-cache",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(15*time.Second),
		WithMaxHalfOpenRequests(1),
		WithOnStateChange(onStateChange),
	)
}
