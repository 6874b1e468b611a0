// Package resilience provides the circuit breaker guarding Sentinel master
// discovery: when every Sentinel host stops answering, the breaker keeps the
// transport from hammering the quorum between its own bounded lookup retries.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by Execute while the breaker is open and its
// cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: circuit breaker is open")

// State is the breaker's position in the closed -> open -> half-open cycle.
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota
	// StateOpen rejects every call until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits one probe call at a time to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config configures a CircuitBreaker. Zero values take the defaults noted on
// each field.
type Config struct {
	// Name identifies the breaker in state-change notifications.
	Name string

	// FailureThreshold is how many consecutive failures open the breaker.
	// Defaults to 5.
	FailureThreshold int

	// RecoveryThreshold is how many consecutive half-open successes close
	// the breaker again. Defaults to 2.
	RecoveryThreshold int

	// Cooldown is how long an open breaker rejects calls before admitting a
	// half-open probe. Defaults to 30s.
	Cooldown time.Duration

	// OnStateChange, if set, is called synchronously on every transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker tracks consecutive failures of a guarded operation and
// fails fast once the operation looks down. Safe for concurrent use.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time // stubbed in tests

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool // a half-open probe is in flight
}

// NewCircuitBreaker builds a closed breaker from cfg.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn through the breaker: rejected with ErrBreakerOpen while
// open, counted toward the failure/recovery thresholds otherwise. fn's error
// is returned unchanged so callers can still classify it.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the breaker's current state, accounting for an elapsed
// cooldown.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed, clearing all counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return ErrBreakerOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return nil
	default: // StateHalfOpen
		if cb.probing {
			return ErrBreakerOpen
		}
		cb.probing = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if err != nil {
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				cb.transition(StateOpen)
			}
			return
		}
		cb.failures = 0
	case StateHalfOpen:
		cb.probing = false
		if err != nil {
			cb.transition(StateOpen)
			return
		}
		cb.successes++
		if cb.successes >= cb.cfg.RecoveryThreshold {
			cb.transition(StateClosed)
		}
	}
}

// transition moves to next, resetting counts. Caller holds cb.mu.
func (cb *CircuitBreaker) transition(next State) {
	prev := cb.state
	if prev == next {
		cb.failures = 0
		cb.successes = 0
		return
	}
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	if next == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, prev, next)
	}
}
