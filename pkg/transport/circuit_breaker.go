// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"sync"
	"time"
)

// BreakerConfig configures circuit breaker behavior.
//
// # Example
//
//	cfg := BreakerConfig{
//	    Threshold:    5,                // refuse after 5 consecutive failures
//	    ResetTimeout: 30 * time.Second, // cool down before probing again
//	}
type BreakerConfig struct {
	// Threshold is consecutive failures before the breaker refuses calls.
	// Default: 5.
	Threshold int

	// ResetTimeout is how long after the last failure Available keeps
	// refusing. Default: 30 seconds.
	ResetTimeout time.Duration

	// Now is the clock, injectable for tests. Default: time.Now.
	Now func() time.Time
}

// BreakerSnapshot is a read-only view of breaker state for diagnostics.
// Mutating a snapshot has no effect on the breaker.
type BreakerSnapshot struct {
	FailureCount int
	LastFailure  time.Time
	Threshold    int
	ResetTimeout time.Duration
	Open         bool
}

// Breaker is a failure-count gate in front of the backend.
//
// # Description
//
// After Threshold consecutive failures the breaker refuses calls until
// ResetTimeout has elapsed since the last failure. There is no background
// timer: state is evaluated lazily on each Available call, which avoids
// timer leaks across short-lived client instances. When the timeout has
// elapsed, Available resets the counters and returns true — the half-open
// probe is implicit, the next call's own outcome decides whether the
// breaker reopens.
//
// # Thread Safety
//
// Breaker is safe for concurrent use, though calls are serialized per
// client instance in practice: counters are only mutated from the
// success/failure report of a completed attempt.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
	failureCount int
	lastFailure  time.Time
}

// NewBreaker creates a closed breaker, applying defaults for zero values.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		threshold:    cfg.Threshold,
		resetTimeout: cfg.ResetTimeout,
		now:          cfg.Now,
	}
}

// Available reports whether a call may be issued.
//
// When the failure count has reached the threshold and the reset timeout
// has elapsed since the last failure, the counters reset and the call is
// allowed through as the recovery probe.
func (b *Breaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount < b.threshold {
		return true
	}
	if b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.failureCount = 0
		b.lastFailure = time.Time{}
		return true
	}
	return false
}

// ReportSuccess resets the consecutive failure count.
func (b *Breaker) ReportSuccess() {
	b.mu.Lock()
	b.failureCount = 0
	b.mu.Unlock()
}

// ReportFailure increments the failure count and stamps the failure time.
func (b *Breaker) ReportFailure() {
	b.mu.Lock()
	b.failureCount++
	b.lastFailure = b.now()
	b.mu.Unlock()
}

// Snapshot returns a copy of the current state. The counters themselves
// stay private so external code cannot reset the breaker by accident.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
		Threshold:    b.threshold,
		ResetTimeout: b.resetTimeout,
		Open:         b.failureCount >= b.threshold && b.now().Sub(b.lastFailure) < b.resetTimeout,
	}
}
