// Package resilience wraps Redis writes and channel rebuilds with a circuit
// breaker, exponential-backoff retry and a context-based timeout.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

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

// CircuitBreakerConfig controls when a breaker trips and how it tests for
// recovery. Zero values take the defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long an open circuit refuses calls before letting
	// trial calls through. Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps concurrent trial calls. Default 1.
	HalfOpenMaxRequests int
	// OnStateChange is called on every transition with the breaker's lock
	// held, so it must not call back into the breaker.
	OnStateChange func(name string, to State)
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State               State
	ConsecutiveFailures int
	TotalFailures       int64
	Rejected            int64
	OpenedAt            time.Time
}

// CircuitBreaker guards one dependency, for example the message log. After
// FailureThreshold consecutive failures it rejects calls with ErrCircuitOpen
// until ResetTimeout has passed, then admits trial calls; one successful trial
// closes it and one failed trial reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	counts   Counts
	inFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Name returns the label the breaker reports its state under.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the circuit is refusing calls, and records the
// outcome. Errors from fn are returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(trial, err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts.State
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.counts.ConsecutiveFailures = 0
	cb.inFlight = 0
	cb.transition(StateClosed)
	cb.logger.Info("circuit manually reset")
}

// admit reports whether the call is a half-open trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.counts.State == StateOpen {
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.counts.OpenedAt)
		if wait > 0 {
			cb.counts.Rejected++
			return false, fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.inFlight = 0
		cb.transition(StateHalfOpen)
	}
	if cb.counts.State == StateHalfOpen {
		if cb.inFlight >= cb.cfg.HalfOpenMaxRequests {
			cb.counts.Rejected++
			return false, fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, cb.name)
		}
		cb.inFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial && cb.inFlight > 0 {
		cb.inFlight--
	}

	if err == nil {
		cb.counts.ConsecutiveFailures = 0
		if cb.counts.State == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}

	cb.counts.ConsecutiveFailures++
	cb.counts.TotalFailures++
	switch {
	case cb.counts.State == StateHalfOpen:
		cb.logger.Warn("trial failed, circuit reopened", "error", err)
		cb.transition(StateOpen)
	case cb.counts.State == StateClosed && cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold:
		cb.logger.Warn("circuit opened",
			"consecutive_failures", cb.counts.ConsecutiveFailures,
			"last_error", err,
		)
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.counts.State
	if to == StateOpen {
		cb.counts.OpenedAt = cb.now()
	}
	cb.counts.State = to
	if from != to {
		cb.logger.Info("circuit state changed", "from", from.String(), "to", to.String())
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
