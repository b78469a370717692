package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen lets trial requests through to probe whether the dependency recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

// Option customises a breaker created by New.
type Option func(*breaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *breaker) {
		cb.now = now
	}
}

// WithStateChange registers a hook called on every transition.
// It runs with the breaker's lock held and must not call back into the breaker.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *breaker) {
		cb.onStateChange = fn
	}
}

// WithFailurePredicate decides which errors count as failures. Errors for
// which it returns false are passed through without affecting the breaker.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *breaker) {
		cb.isFailure = fn
	}
}

type breaker struct {
	failureThreshold uint32        // Number of consecutive failures to trip the circuit.
	successThreshold uint32        // Number of successes in HalfOpen state to close the circuit.
	timeout          time.Duration // Duration to wait in Open state before transitioning to HalfOpen.

	now           func() time.Time
	onStateChange func(from, to State)
	isFailure     func(error) bool

	mutex                sync.Mutex
	state                State
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
}

// New creates a circuit breaker.
// failureThreshold: consecutive failures that open the circuit (minimum 1).
// successThreshold: consecutive half-open successes that close it again (minimum 1).
// timeout: how long the circuit stays open before allowing a trial request.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	cb := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
		isFailure:        func(err error) bool { return err != nil },
		state:            Closed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State returns the current state of the circuit breaker.
func (cb *breaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.refresh()
	return cb.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (cb *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	cb.mutex.Lock()
	cb.refresh()
	if cb.state == Open {
		cb.mutex.Unlock()
		return nil, ErrCircuitOpen
	}
	cb.mutex.Unlock()

	res, err := req()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if err != nil {
		if cb.isFailure(err) {
			cb.onFailure()
		}
		return nil, err
	}
	cb.onSuccess()
	return res, nil
}

// refresh moves an expired Open circuit to HalfOpen. Caller holds the lock.
func (cb *breaker) refresh() {
	if cb.state == Open && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.setState(HalfOpen)
		cb.consecutiveSuccesses = 0
	}
}

func (cb *breaker) onSuccess() {
	switch cb.state {
	case HalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.setState(Closed)
			cb.consecutiveFailures = 0
			cb.consecutiveSuccesses = 0
		}
	case Closed:
		cb.consecutiveFailures = 0
	}
}

func (cb *breaker) onFailure() {
	switch cb.state {
	case HalfOpen:
		cb.trip()
	case Closed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.trip()
		}
	}
}

func (cb *breaker) trip() {
	cb.setState(Open)
	cb.openedAt = cb.now()
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}

func (cb *breaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
