// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures backoff delays instead of waiting them out.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestRetryValidationFailsAfterOneAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: sleeper.Sleep}

	attempts := 0
	err := policy.Do(context.Background(), "chat", nil, func() error {
		attempts++
		return &Error{Kind: KindValidation, Msg: "bad payload"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRetryNetworkUsesAllAttemptsWithIncreasingDelays(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Sleep: sleeper.Sleep}

	attempts := 0
	err := policy.Do(context.Background(), "chat", nil, func() error {
		attempts++
		return &Error{Kind: KindNetwork, Msg: "connection refused"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	require.Len(t, sleeper.delays, 2)
	assert.Equal(t, 100*time.Millisecond, sleeper.delays[0])
	assert.Equal(t, 200*time.Millisecond, sleeper.delays[1])
	assert.Greater(t, sleeper.delays[1], sleeper.delays[0])
}

func TestRetrySucceedsMidway(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: sleeper.Sleep}

	attempts := 0
	err := policy.Do(context.Background(), "chat", nil, func() error {
		attempts++
		if attempts < 2 {
			return &Error{Kind: KindServer, Msg: "boom"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error { return ctx.Err() }}

	attempts := 0
	err := policy.Do(ctx, "chat", nil, func() error {
		attempts++
		cancel()
		return &Error{Kind: KindTimeout, Msg: "deadline"}
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, attempts)
}

func TestDelayDoubles(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 500 * time.Millisecond}
	assert.Equal(t, 500*time.Millisecond, policy.Delay(0))
	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
}
