package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls until the reset timeout elapses
	StateHalfOpen              // Admitting trial calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state label, so JSON bodies carry "OPEN" rather than 1.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrCircuitOpen is returned without running the operation while the breaker is OPEN.
	ErrCircuitOpen = errors.New("circuit breaker is OPEN")
	// ErrTooManyRequests is returned when every HALF_OPEN trial slot is already taken.
	ErrTooManyRequests = errors.New("circuit breaker is HALF_OPEN and at its trial limit")
)

const (
	DefaultFailureThreshold    = 5
	DefaultResetTimeout        = 10 * time.Second
	DefaultHalfOpenMaxRequests = 3
)

// Settings configures a CircuitBreaker. Zero fields fall back to the defaults.
type Settings struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// IsFailure decides whether a non-nil error counts against the breaker.
	// Errors it rejects are recorded as neither success nor failure. When
	// nil, every error except context.Canceled is a failure.
	IsFailure func(err error) bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold:    DefaultFailureThreshold,
		ResetTimeout:        DefaultResetTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
	}
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	if s.HalfOpenMaxRequests <= 0 {
		s.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}
	if s.IsFailure == nil {
		s.IsFailure = defaultIsFailure
	}
	return s
}

// A cancelled call says nothing about the health of the dependency.
func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Counts is a point-in-time copy of the breaker's bookkeeping.
type Counts struct {
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
}

type CircuitBreaker struct {
	mutex       sync.Mutex
	settings    Settings
	state       State
	failures    int
	successes   int
	inFlight    int    // HALF_OPEN trials currently running
	generation  uint64 // bumped on every transition
	lastFailure time.Time
	listeners   []Listener
	now         func() time.Time
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	return &CircuitBreaker{
		settings: settings.withDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
}

// Subscribe attaches a listener that is told about every transition and outcome.
func (cb *CircuitBreaker) Subscribe(l Listener) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.listeners = append(cb.listeners, l)
}

// Execute runs op under the breaker. The error returned by op is passed back
// unchanged; ErrCircuitOpen and ErrTooManyRequests mean op was never called.
func (cb *CircuitBreaker) Execute(op func() error) error {
	t, err := cb.before()
	if err != nil {
		return err
	}

	opErr := op()
	cb.after(t, opErr)
	return opErr
}

// ticket records whether a call holds a HALF_OPEN trial slot, and in which generation.
type ticket struct {
	trial      bool
	generation uint64
}

func (cb *CircuitBreaker) before() (t ticket, err error) {
	cb.mutex.Lock()
	var events []notification
	defer func() {
		listeners := cb.listeners
		cb.mutex.Unlock()
		notify(listeners, events)
	}()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.settings.ResetTimeout {
			return ticket{}, ErrCircuitOpen
		}
		events = append(events, cb.transition(StateHalfOpen))
	}

	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.settings.HalfOpenMaxRequests {
			return ticket{}, ErrTooManyRequests
		}
		cb.inFlight++
		return ticket{trial: true, generation: cb.generation}, nil
	}

	return ticket{generation: cb.generation}, nil
}

func (cb *CircuitBreaker) after(t ticket, opErr error) {
	cb.mutex.Lock()
	var events []notification
	defer func() {
		listeners := cb.listeners
		cb.mutex.Unlock()
		notify(listeners, events)
	}()

	if t.trial && t.generation == cb.generation && cb.inFlight > 0 {
		cb.inFlight--
	}

	if opErr == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.settings.HalfOpenMaxRequests {
				events = append(events, cb.transition(StateClosed))
			}
		}
		events = append(events, notification{EventSuccess, cb.state})
		return
	}

	if !cb.settings.IsFailure(opErr) {
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if (cb.state == StateClosed && cb.failures >= cb.settings.FailureThreshold) || cb.state == StateHalfOpen {
		events = append(events, cb.transition(StateOpen))
	}
	events = append(events, notification{EventFailure, cb.state})
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to State) notification {
	cb.state = to
	cb.generation++

	switch to {
	case StateHalfOpen:
		cb.successes = 0
		cb.inFlight = 0
		return notification{EventHalfOpen, to}
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
		return notification{EventClosed, to}
	default:
		return notification{EventOpen, to}
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return Counts{
		FailureCount: cb.failures,
		SuccessCount: cb.successes,
		LastFailure:  cb.lastFailure,
	}
}

func (cb *CircuitBreaker) Settings() Settings {
	return cb.settings
}
