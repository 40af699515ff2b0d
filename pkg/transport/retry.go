// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"context"
	"time"

	"github.com/docksideai/dockside/pkg/logging"
)

// RetryPolicy bounds re-attempts of a failed call with exponential backoff.
//
// Only timeout, network and server failures are retried; validation and
// circuit-open failures return immediately without consuming an attempt
// budget. Delays grow as BaseDelay * 2^retry, so they are strictly
// increasing. There is no jitter: a single interactive client gains nothing
// from it and deterministic delays keep the behavior testable.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Default: 500ms.
	BaseDelay time.Duration

	// Sleep waits for d or until ctx is cancelled, injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the backoff before retry number retry (0-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return base << uint(retry)
}

// Do runs fn up to MaxAttempts times.
//
// After each failure the error kind decides: non-retryable kinds return
// immediately, retryable kinds wait the backoff delay and try again.
// Context cancellation aborts the wait and returns the context error.
func (p RetryPolicy) Do(ctx context.Context, operation string, logger *logging.Logger, fn func() error) error {
	p = p.withDefaults()
	if logger == nil {
		logger = logging.Default()
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry",
					"operation", operation,
					"attempt", attempt+1,
				)
			}
			return nil
		}
		lastErr = err

		kind := KindOf(err)
		if !kind.Retryable() {
			logger.Debug("non-retryable error, aborting",
				"operation", operation,
				"kind", string(kind),
				"error", err.Error(),
			)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		logger.Warn("retrying after error",
			"operation", operation,
			"kind", string(kind),
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"retry_delay", delay.String(),
		)
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
