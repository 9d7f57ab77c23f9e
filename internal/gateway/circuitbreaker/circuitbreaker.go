// Package circuitbreaker guards gateway settle/refund calls: a gateway that
// keeps failing is taken out of rotation for a cool-down window instead of
// absorbing every request.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the per-gateway circuit state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

const (
	defaultFailureThreshold         = 5
	defaultOpenStateTimeout         = 30 * time.Second
	defaultHalfOpenSuccessThreshold = 2
)

type gatewayState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
}

// Breaker is an in-memory circuit breaker keyed by gateway name.
type Breaker struct {
	mu       sync.Mutex
	gateways map[string]*gatewayState

	failureThreshold         int
	openStateTimeout         time.Duration
	halfOpenSuccessThreshold int
}

// New creates a Breaker with default settings.
func New() *Breaker {
	return NewWithSettings(defaultFailureThreshold, defaultOpenStateTimeout, defaultHalfOpenSuccessThreshold)
}

// NewWithSettings creates a Breaker with custom thresholds.
func NewWithSettings(failThreshold int, openTimeout time.Duration, halfOpenSuccess int) *Breaker {
	return &Breaker{
		gateways:                 make(map[string]*gatewayState),
		failureThreshold:         failThreshold,
		openStateTimeout:         openTimeout,
		halfOpenSuccessThreshold: halfOpenSuccess,
	}
}

func (b *Breaker) state(name string) *gatewayState {
	gs, ok := b.gateways[name]
	if !ok {
		gs = &gatewayState{state: Closed}
		b.gateways[name] = gs
	}
	return gs
}

// Allow reports whether calls to the gateway may proceed. An Open circuit
// whose timeout has elapsed moves to HalfOpen and lets probe calls through.
func (b *Breaker) Allow(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	gs := b.state(name)
	switch gs.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Now().After(gs.openUntil) {
			gs.state = HalfOpen
			gs.consecutiveSuccesses = 0
			return true
		}
		return false
	}
	return true
}

// RecordFailure counts a failed call; enough consecutive failures open the
// circuit, and any failure while HalfOpen re-opens it immediately.
func (b *Breaker) RecordFailure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gs := b.state(name)
	switch gs.state {
	case Closed:
		gs.consecutiveFailures++
		if gs.consecutiveFailures >= b.failureThreshold {
			gs.state = Open
			gs.openUntil = time.Now().Add(b.openStateTimeout)
		}
	case HalfOpen:
		gs.state = Open
		gs.openUntil = time.Now().Add(b.openStateTimeout)
		gs.consecutiveFailures = 0
		gs.consecutiveSuccesses = 0
	}
}

// RecordSuccess counts a successful call; enough successes while HalfOpen
// close the circuit again.
func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gs := b.state(name)
	switch gs.state {
	case Closed:
		gs.consecutiveFailures = 0
	case HalfOpen:
		gs.consecutiveSuccesses++
		if gs.consecutiveSuccesses >= b.halfOpenSuccessThreshold {
			gs.state = Closed
			gs.consecutiveFailures = 0
			gs.consecutiveSuccesses = 0
		}
	}
}

// GetState returns the current circuit state without side effects.
func (b *Breaker) GetState(name string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	gs, ok := b.gateways[name]
	if !ok {
		return Closed
	}
	return gs.state
}
