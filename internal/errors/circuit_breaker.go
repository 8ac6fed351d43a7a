package errors

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	ErrHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// BreakerSettings tunes when a CircuitBreaker trips and recovers.
type BreakerSettings struct {
	ErrorThreshold      float64
	MinRequests         int
	OpenTimeout         time.Duration
	HalfOpenMaxRequests int
}

// DefaultBreakerSettings trips at a 50% failure rate over at least 10 calls and probes again after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ErrorThreshold:      0.5,
		MinRequests:         10,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

type CircuitBreaker struct {
	mu              sync.Mutex
	settings        BreakerSettings
	state           BreakerState
	failures        int
	successes       int
	requests        int
	lastFailureTime time.Time
	now             func() time.Time
}

func NewCircuitBreaker(settings BreakerSettings) *CircuitBreaker {
	defaults := DefaultBreakerSettings()
	if settings.ErrorThreshold <= 0 {
		settings.ErrorThreshold = defaults.ErrorThreshold
	}
	if settings.MinRequests <= 0 {
		settings.MinRequests = defaults.MinRequests
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = defaults.OpenTimeout
	}
	if settings.HalfOpenMaxRequests <= 0 {
		settings.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}

	return &CircuitBreaker{
		settings: settings,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Call runs fn unless the breaker is open, recording its outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) >= cb.settings.OpenTimeout {
			cb.transitionToHalfOpenLocked()
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen && cb.requests >= cb.settings.HalfOpenMaxRequests {
		cb.mu.Unlock()
		return ErrHalfOpenTooManyRequests
	}
	cb.mu.Unlock()

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if callErr != nil {
		cb.failures++
		cb.requests++

		if cb.state == StateHalfOpen {
			cb.tripToOpenLocked()
		} else {
			cb.evaluateState()
		}

		return callErr
	}

	cb.successes++
	cb.requests++

	if cb.state == StateHalfOpen && cb.successes >= cb.settings.HalfOpenMaxRequests {
		cb.state = StateClosed
		cb.resetCountersLocked()
	}

	return nil
}

func (cb *CircuitBreaker) evaluateState() {
	if cb.requests < cb.settings.MinRequests {
		return
	}

	errorRate := float64(cb.failures) / float64(cb.requests)
	if errorRate >= cb.settings.ErrorThreshold {
		cb.tripToOpenLocked()
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) resetCountersLocked() {
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}

func (cb *CircuitBreaker) transitionToHalfOpenLocked() {
	cb.state = StateHalfOpen
	cb.resetCountersLocked()
}

func (cb *CircuitBreaker) tripToOpenLocked() {
	cb.state = StateOpen
	cb.lastFailureTime = cb.now()
	cb.resetCountersLocked()
}
