package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a key's circuit rejects the call
var ErrCircuitOpen = errors.New("circuit breaker is OPEN")

// BreakerState is the per-key circuit state
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s BreakerState) String() string {
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

// BreakerConfig holds the thresholds shared by all keys of one breaker
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a key
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count that closes a
	// half-open key
	SuccessThreshold int
	// Timeout is how long an open key rejects calls before a probe is
	// allowed through
	Timeout time.Duration
}

// DefaultBreakerConfig provides production defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

type keyState struct {
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// CircuitBreaker guards any number of keys, each with independent state.
// State transitions are atomic per key; the guarded operation itself runs
// outside the lock.
type CircuitBreaker struct {
	mu     sync.Mutex
	config BreakerConfig
	states map[string]*keyState
}

// NewCircuitBreaker creates a breaker; zero-valued config fields fall back
// to defaults
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	defaults := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &CircuitBreaker{
		config: config,
		states: make(map[string]*keyState),
	}
}

// Execute runs op under the key's circuit. Open keys reject immediately
// with ErrCircuitOpen until Timeout has elapsed, then admit one probe in
// half-open state.
func (b *CircuitBreaker) Execute(key string, op func() error) error {
	if err := b.beforeCall(key); err != nil {
		return err
	}
	err := op()
	b.afterCall(key, err)
	return err
}

func (b *CircuitBreaker) beforeCall(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ks := b.stateFor(key)
	if ks.state == StateOpen {
		if time.Since(ks.openedAt) < b.config.Timeout {
			return ErrCircuitOpen
		}
		ks.state = StateHalfOpen
		ks.successes = 0
	}
	return nil
}

func (b *CircuitBreaker) afterCall(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ks := b.stateFor(key)
	if err != nil {
		switch ks.state {
		case StateHalfOpen:
			// one failed probe reopens the circuit
			ks.state = StateOpen
			ks.openedAt = time.Now()
			ks.failures = 0
		default:
			ks.failures++
			if ks.failures >= b.config.FailureThreshold {
				ks.state = StateOpen
				ks.openedAt = time.Now()
				ks.failures = 0
			}
		}
		return
	}

	switch ks.state {
	case StateHalfOpen:
		ks.successes++
		if ks.successes >= b.config.SuccessThreshold {
			ks.state = StateClosed
			ks.failures = 0
			ks.successes = 0
		}
	default:
		ks.failures = 0
	}
}

// stateFor returns the key's state record, creating it closed. Caller holds
// the lock.
func (b *CircuitBreaker) stateFor(key string) *keyState {
	ks, ok := b.states[key]
	if !ok {
		ks = &keyState{state: StateClosed}
		b.states[key] = ks
	}
	return ks
}

// State returns the current state of a key (closed for unknown keys)
func (b *CircuitBreaker) State(key string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ks, ok := b.states[key]; ok {
		return ks.state
	}
	return StateClosed
}

// States snapshots every known key's state for introspection
func (b *CircuitBreaker) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.states))
	for key, ks := range b.states {
		out[key] = ks.state.String()
	}
	return out
}

// Reset returns a key to closed with cleared counters
func (b *CircuitBreaker) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
}

// ResetAll clears every key
func (b *CircuitBreaker) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = make(map[string]*keyState)
}
