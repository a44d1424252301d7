// Package circuitbreaker provides a consecutive-failure circuit breaker used
// to fail fast while a downstream store is unavailable.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

// State constants for circuit breaker.
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject calls
	StateHalfOpen              // Probing whether the store recovered
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

// ErrCircuitOpen is returned without calling the guarded function while the
// circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings configures the circuit breaker.
type Settings struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// OpenTimeout is how long the circuit stays open before a probe is allowed.
	OpenTimeout time.Duration

	// MaxHalfOpenCalls is how many probes may run, and must succeed, before
	// the circuit closes again.
	MaxHalfOpenCalls int

	// IsFailure decides whether an error counts against the store. Nil uses
	// DefaultIsFailure.
	IsFailure func(err error) bool

	// OnStateChange is called asynchronously when the state changes.
	OnStateChange func(name string, from, to State)

	now func() time.Time
}

// DefaultSettings returns the settings used by the log store.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		MaxHalfOpenCalls: 1,
	}
}

// DefaultIsFailure counts every error except caller cancellation.
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	settings Settings

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	halfOpenCalls int
	openedAt      time.Time
}

// New creates a circuit breaker. Non-positive limits take the defaults.
func New(settings Settings) *CircuitBreaker {
	defaults := DefaultSettings(settings.Name)
	if settings.MaxFailures < 1 {
		settings.MaxFailures = defaults.MaxFailures
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = defaults.OpenTimeout
	}
	if settings.MaxHalfOpenCalls < 1 {
		settings.MaxHalfOpenCalls = defaults.MaxHalfOpenCalls
	}
	if settings.IsFailure == nil {
		settings.IsFailure = DefaultIsFailure
	}
	if settings.now == nil {
		settings.now = time.Now
	}
	return &CircuitBreaker{settings: settings}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterCall(err)

	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string {
	return cb.settings.Name
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.settings.now().Sub(cb.openedAt) < cb.settings.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenCalls++
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.settings.MaxHalfOpenCalls {
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
	case StateClosed:
	}

	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.settings.IsFailure(err) {
		cb.onFailure()
		return
	}

	if err != nil {
		// Not the store's fault; release a half-open slot without judging it.
		if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
			cb.halfOpenCalls--
		}
		return
	}

	cb.onSuccess()
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.settings.MaxHalfOpenCalls {
			cb.setState(StateClosed)
		}
	case StateOpen:
	}
}

func (cb *CircuitBreaker) onFailure() {
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.settings.MaxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateOpen:
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0
	if to == StateOpen {
		cb.openedAt = cb.settings.now()
	}

	if cb.settings.OnStateChange != nil {
		go cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}
