// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/docksideai/dockside/pkg/conversation"
)

// revealHandle controls one in-flight character reveal. The engine owns
// exactly one per turn and releases it on every terminal transition, so a
// reveal timer can never outlive its message.
type revealHandle struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newRevealHandle() *revealHandle {
	return &revealHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Stop asks the reveal goroutine to finish early. Idempotent; the
// goroutine finalizes the message with whatever prefix is on screen.
func (h *revealHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Wait blocks until the reveal goroutine has finalized the message.
func (h *revealHandle) Wait() { <-h.done }

// beginReveal installs the reveal handle on the turn, or reports that a
// cancel won the race. Both sides run under the engine lock: once this
// returns a handle, Cancel is guaranteed to see it and stop it; once
// Cancel has marked the turn, this refuses and the turn settles cancelled.
func (e *Engine) beginReveal(t *turn) (*revealHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.cancelled {
		return nil, false
	}
	h := newRevealHandle()
	t.reveal = h
	return h, true
}

// startReveal plays the buffered answer onto the message character by
// character and settles the turn as delivered. Stopping mid-reveal keeps
// the revealed prefix exactly and still delivers.
func (e *Engine) startReveal(t *turn, h *revealHandle, full string) {
	go func() {
		defer close(h.done)

		runes := []rune(full)
		revealed := 0

	reveal:
		for revealed < len(runes) {
			timer := time.NewTimer(e.revealDelay())
			select {
			case <-h.stop:
				timer.Stop()
				break reveal
			case <-timer.C:
			}
			revealed++
			prefix := string(runes[:revealed])
			e.store.Update(t.assistantID, func(m *conversation.Message) {
				m.Text = prefix
			})
		}

		e.settleDelivered(t, string(runes[:revealed]))
	}()
}

// revealDelay picks the pause before the next character. When min and max
// collapse to the same value the delay is fixed, which is what tests use.
func (e *Engine) revealDelay() time.Duration {
	if e.revealMax <= e.revealMin {
		return e.revealMin
	}
	return e.revealMin + rand.N(e.revealMax-e.revealMin)
}
