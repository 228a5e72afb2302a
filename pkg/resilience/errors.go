// Package resilience pkg/resilience/errors.go provides errors for the resilience package.

package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryExhausted matches any *ExhaustedError via errors.Is.
	ErrRetryExhausted = errors.New("retries exhausted")

	// ErrCircuitOpen is returned when a breaker rejects a call outright.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	errTimeoutExceeded = errors.New("time budget exceeded")
)

// ExhaustedError reports that every attempt failed, carrying the last
// underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }
