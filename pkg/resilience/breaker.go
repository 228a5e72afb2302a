package resilience

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// BreakerState is the admission state of one circuit.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultOpenTimeout      = 60 * time.Second
)

// BreakerConfig controls circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
}

// DefaultBreakerConfig returns the standard breaker thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: defaultFailureThreshold,
		SuccessThreshold: defaultSuccessThreshold,
		Timeout:          defaultOpenTimeout,
	}
}

type breaker struct {
	state           BreakerState
	failures        int
	successes       int
	lastFailureTime time.Time
	openTime        time.Time
}

// BreakerRegistry holds one circuit per identifier, lazily initialized on
// first use. State lives only in process memory.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	circuits map[string]*breaker
}

// NewBreakerRegistry creates a registry with the given thresholds.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}

	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaultSuccessThreshold
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOpenTimeout
	}

	return &BreakerRegistry{
		cfg:      cfg,
		circuits: make(map[string]*breaker),
	}
}

func (r *BreakerRegistry) get(id string) *breaker {
	b, ok := r.circuits[id]
	if !ok {
		b = &breaker{state: StateClosed}
		r.circuits[id] = b
	}

	return b
}

// Allow reports whether a call for id may proceed. While open, calls are
// rejected until the open timeout elapses; the first call after that is
// admitted as a half-open probe.
func (r *BreakerRegistry) Allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(id)

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.openTime) >= r.cfg.Timeout {
			b.state = StateHalfOpen
			b.successes = 0

			log.Printf("Circuit %s half-open, admitting probe", id)

			return true
		}

		return false
	}

	return false
}

// RecordSuccess notes a successful call for id.
func (r *BreakerRegistry) RecordSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(id)

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= r.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0

			log.Printf("Circuit %s closed", id)
		}
	case StateOpen:
		// Success without admission should not happen; ignore.
	}
}

// RecordFailure notes a failed call for id.
func (r *BreakerRegistry) RecordFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(id)
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= r.cfg.FailureThreshold {
			r.trip(id, b)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately with the counter pinned to
		// the threshold.
		b.failures = r.cfg.FailureThreshold
		r.trip(id, b)
	case StateOpen:
	}
}

func (r *BreakerRegistry) trip(id string, b *breaker) {
	b.state = StateOpen
	b.openTime = time.Now()
	b.successes = 0

	log.Printf("Circuit %s opened after %d failures", id, b.failures)
}

// State returns the current state of the circuit for id.
func (r *BreakerRegistry) State(id string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.get(id).state
}

// Execute combines the admission check, the call, and success/failure
// recording into one operation.
func (r *BreakerRegistry) Execute(id string, op func() error) error {
	if !r.Allow(id) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, id)
	}

	if err := op(); err != nil {
		r.RecordFailure(id)
		return err
	}

	r.RecordSuccess(id)

	return nil
}
