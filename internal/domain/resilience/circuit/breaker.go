package circuit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/eventbus"
)

// State of one tracked dependency.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config tunes the breaker thresholds shared by all dependencies.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// OpenError is returned when a dependency's circuit rejects a call without
// attempting it. RetryAfter tells callers when a trial call becomes possible.
type OpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry in %s", e.Dependency, e.RetryAfter.Round(time.Second))
}

type circuitState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
}

// Breaker tracks upstream health per named dependency. One backend's outage
// never blocks calls to another.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuitState

	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration

	now func() time.Time
}

// NewBreaker builds a breaker with the given thresholds.
func NewBreaker(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &Breaker{
		circuits:         make(map[string]*circuitState),
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		resetTimeout:     cfg.ResetTimeout,
		now:              time.Now,
	}
}

func (b *Breaker) circuit(dependency string) *circuitState {
	c, ok := b.circuits[dependency]
	if !ok {
		c = &circuitState{state: StateClosed}
		b.circuits[dependency] = c
	}
	return c
}

// admit decides whether a call may proceed, applying the lazy OPEN to
// HALF_OPEN transition on the way.
func (b *Breaker) admit(dependency string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(dependency)
	if c.state == StateOpen {
		elapsed := b.now().Sub(c.openedAt)
		if elapsed < b.resetTimeout {
			return &OpenError{Dependency: dependency, RetryAfter: b.resetTimeout - elapsed}
		}
		b.transition(dependency, c, StateHalfOpen)
		c.consecutiveSuccesses = 0
	}
	return nil
}

func (b *Breaker) recordSuccess(dependency string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(dependency)
	c.consecutiveFailures = 0
	c.consecutiveSuccesses++

	if c.state == StateHalfOpen && c.consecutiveSuccesses >= b.successThreshold {
		b.transition(dependency, c, StateClosed)
	}
}

func (b *Breaker) recordFailure(dependency string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(dependency)
	c.consecutiveSuccesses = 0
	c.consecutiveFailures++

	switch c.state {
	case StateHalfOpen:
		c.openedAt = b.now()
		b.transition(dependency, c, StateOpen)
	case StateClosed:
		if c.consecutiveFailures >= b.failureThreshold {
			c.openedAt = b.now()
			b.transition(dependency, c, StateOpen)
		}
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(dependency string, c *circuitState, to State) {
	from := c.state
	c.state = to

	topic := eventbus.EventCircuitClosed
	switch to {
	case StateOpen:
		topic = eventbus.EventCircuitOpened
	case StateHalfOpen:
		topic = eventbus.EventCircuitHalfOpen
	}
	eventbus.PublishAsync(topic, eventbus.CircuitEventData{
		Dependency: dependency,
		From:       string(from),
		To:         string(to),
	})
}

// Execute runs fn under the dependency's circuit. In OPEN state fn is never
// invoked. Success and failure both feed the state machine.
func (b *Breaker) Execute(ctx context.Context, dependency string, fn func(ctx context.Context) error) error {
	if err := b.admit(dependency); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		b.recordFailure(dependency)
		return err
	}
	b.recordSuccess(dependency)
	return nil
}

// StateOf reports the dependency's current state, applying the lazy
// OPEN to HALF_OPEN transition first.
func (b *Breaker) StateOf(dependency string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[dependency]
	if !ok {
		return StateClosed
	}
	if c.state == StateOpen && b.now().Sub(c.openedAt) >= b.resetTimeout {
		b.transition(dependency, c, StateHalfOpen)
		c.consecutiveSuccesses = 0
	}
	return c.state
}

// Stats summarises every tracked circuit.
func (b *Breaker) Stats() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	circuits := make(map[string]any, len(b.circuits))
	for name, c := range b.circuits {
		circuits[name] = map[string]any{
			"state":                 string(c.state),
			"consecutive_failures":  c.consecutiveFailures,
			"consecutive_successes": c.consecutiveSuccesses,
		}
	}
	return map[string]any{
		"failure_threshold": b.failureThreshold,
		"success_threshold": b.successThreshold,
		"reset_timeout":     b.resetTimeout.String(),
		"circuits":          circuits,
	}
}
