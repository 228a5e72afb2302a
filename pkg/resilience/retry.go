/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package resilience pkg/resilience/retry.go wraps every network- and
// process-facing call the upgrade pipeline makes.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultMultiplier   = 2.0

	pollInterval = 1 * time.Second
)

// RetryConfig controls exponential backoff retry behavior.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// DefaultRetryConfig returns the retry settings used when a caller does
// not override them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}

	if c.Multiplier <= 1 {
		c.Multiplier = defaultMultiplier
	}

	return c
}

// Retry runs op with exponential backoff until it succeeds or
// cfg.MaxAttempts attempts have failed. Exhaustion surfaces as an
// *ExhaustedError wrapping the last underlying error.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0

	attempts := 0

	err := backoff.Retry(func() error {
		attempts++
		return op()
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1)), ctx)) //nolint:gosec // MaxAttempts >= 1

	if err == nil {
		return nil
	}

	if attempts >= cfg.MaxAttempts {
		return &ExhaustedError{Attempts: attempts, Err: err}
	}

	// Context cancellation before the attempt budget was spent.
	return err
}

// RetryFixed runs op up to attempts times with a fixed delay between
// failures.
func RetryFixed(ctx context.Context, attempts int, delay time.Duration, op func() error) error {
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var lastErr error

	for i := 0; i < attempts; i++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// RetryUntil polls op every second until it succeeds or the elapsed-time
// budget is exceeded. Used for network-endpoint waits.
func RetryUntil(ctx context.Context, budget time.Duration, op func() error) error {
	deadline := time.Now().Add(budget)

	var lastErr error

	for {
		if lastErr = op(); lastErr == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s: %w", errTimeoutExceeded, budget, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
