package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to an unreliable collaborator. It trips open
// after a run of consecutive failures, stays open for the cooldown period,
// then lets a probe request through in half-open state.
type CircuitBreaker struct {
	name             string
	failureThreshold uint32
	cooldown         time.Duration

	mutex  sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		state:            StateClosed,
	}
}

// WithThreshold overrides the consecutive-failure trip point.
func (cb *CircuitBreaker) WithThreshold(n uint32) *CircuitBreaker {
	if n > 0 {
		cb.failureThreshold = n
	}
	return cb
}

// WithCooldown overrides how long the breaker stays open before probing.
func (cb *CircuitBreaker) WithCooldown(d time.Duration) *CircuitBreaker {
	if d > 0 {
		cb.cooldown = d
	}
	return cb
}

// Execute runs req unless the breaker is open. The context is accepted for
// call-site symmetry; req itself is responsible for honoring it.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			cb.afterRequest(false)
			panic(e)
		}
	}()

	err := req()
	cb.afterRequest(err == nil)
	return err
}

// State returns the breaker's current state, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState(time.Now())
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.currentState(time.Now()) == StateOpen {
		return ErrBreakerOpen
	}

	cb.counts.Requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state := cb.currentState(time.Now())

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			cb.state = StateClosed
			cb.counts = Counts{}
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	if state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.failureThreshold {
		cb.state = StateOpen
		cb.expiry = time.Now().Add(cb.cooldown)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && cb.expiry.Before(now) {
		cb.state = StateHalfOpen
	}
	return cb.state
}
