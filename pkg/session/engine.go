// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session orchestrates a chat turn end to end: user submission,
// backend call, streamed accumulation, progressive reveal, settlement.
//
// The engine is the only code that moves messages between statuses. It
// enforces single-flight (one non-terminal message per conversation) and
// guarantees every turn ends in a terminal state, even under cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docksideai/dockside/pkg/conversation"
	"github.com/docksideai/dockside/pkg/logging"
	"github.com/docksideai/dockside/pkg/mention"
	"github.com/docksideai/dockside/pkg/stream"
	"github.com/docksideai/dockside/pkg/transport"
)

// Transport is the slice of *transport.Client the engine depends on.
type Transport interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
	Stream(ctx context.Context, req transport.Request) (*stream.Stream, error)
	ReportStreamFailure(err error)
}

var (
	// ErrTurnInFlight means a prior turn has not reached a terminal state.
	ErrTurnInFlight = errors.New("a message is already in flight")

	// ErrEmptyMessage means the submitted text was blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotRetryable means Retry was called on a non-errored message.
	ErrNotRetryable = errors.New("only errored messages can be retried")
)

// Config assembles an Engine. Store and Client are required.
type Config struct {
	Store    *conversation.Store
	Client   Transport
	Resolver *mention.Resolver
	Logger   *logging.Logger
	Metrics  *transport.Metrics

	// RevealMin and RevealMax bound the per-character reveal delay.
	// Defaults: 15ms and 35ms. Equal values give a fixed delay.
	RevealMin time.Duration
	RevealMax time.Duration

	// NoStream forces complete (non-streaming) responses.
	NoStream bool
}

// Stats are running counters for the session, shown by the UI status line.
type Stats struct {
	TurnsStarted   int
	Delivered      int
	Failed         int
	Cancelled      int
	ChunksReceived int64
	CharsRevealed  int64
}

// turn is the engine's bookkeeping for one in-flight exchange.
type turn struct {
	assistantID string
	userID      string
	cancel      context.CancelFunc
	cancelled   bool
	reveal      *revealHandle
}

// Engine is the message lifecycle state machine.
//
// # Description
//
// Send appends a delivered user message and a queued assistant
// placeholder, then drives the placeholder through
// sending → streaming → revealing → delivered on a background goroutine.
// Failures settle as error with a classified kind; Cancel settles as
// cancelled (discarding buffered text) or, during reveal, delivers the
// revealed prefix. At most one turn is in flight; CanSend gates the UI.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Transcript state lives
// in the Store; the engine only holds the in-flight turn and counters.
type Engine struct {
	store     *conversation.Store
	client    Transport
	resolver  *mention.Resolver
	logger    *logging.Logger
	metrics   *transport.Metrics
	revealMin time.Duration
	revealMax time.Duration
	noStream  bool

	mu    sync.Mutex
	turn  *turn
	stats Stats
}

// NewEngine creates an Engine, applying defaults for zero-value config.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.RevealMin <= 0 {
		cfg.RevealMin = 15 * time.Millisecond
	}
	if cfg.RevealMax <= 0 {
		cfg.RevealMax = 35 * time.Millisecond
	}
	return &Engine{
		store:     cfg.Store,
		client:    cfg.Client,
		resolver:  cfg.Resolver,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		revealMin: cfg.RevealMin,
		revealMax: cfg.RevealMax,
		noStream:  cfg.NoStream,
	}
}

// CanSend reports whether a new user turn would be accepted.
func (e *Engine) CanSend() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn == nil
}

// Stats returns a copy of the session counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Send submits a user turn. The pending attachment set is snapshotted
// onto the user message at this moment; the live set is cleared only once
// the turn is confirmed delivered, so a failed turn stays retryable with
// its attachments intact.
//
// Returns the assistant message id, or ErrTurnInFlight / ErrEmptyMessage.
func (e *Engine) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	var attachments []conversation.AttachedDocument
	if e.resolver != nil {
		attachments = e.resolver.Attachments()
	}
	return e.start(text, attachments)
}

// Retry creates a fresh turn reusing the input and attachments of an
// errored exchange. The errored message itself is never mutated.
func (e *Engine) Retry(messageID string) (string, error) {
	msg, ok := e.store.Get(messageID)
	if !ok {
		return "", fmt.Errorf("unknown message %q", messageID)
	}
	if msg.Status != conversation.StatusError {
		return "", ErrNotRetryable
	}

	// The user half of the turn sits before the errored assistant message.
	messages := e.store.Messages()
	var user *conversation.Message
	for i := range messages {
		if messages[i].ID == messageID {
			for j := i; j >= 0; j-- {
				if messages[j].Sender == conversation.SenderUser {
					user = &messages[j]
					break
				}
			}
			break
		}
	}
	if user == nil {
		return "", fmt.Errorf("no user input found for message %q", messageID)
	}
	return e.start(user.Text, user.Attachments)
}

// Cancel aborts the in-flight turn. Idempotent: with no turn in flight,
// or a turn already terminal, it does nothing.
//
// During sending or streaming the transport call is aborted and buffered
// text is discarded — the message settles as cancelled with empty text.
// During revealing the reveal stops and the message delivers with exactly
// the prefix revealed so far.
func (e *Engine) Cancel() {
	// The branch is decided against the turn's own state under the engine
	// lock, not a racy status read: either the reveal handle is installed
	// (stop it, keep the prefix) or it is not yet (mark cancelled before
	// beginReveal can install one). A cancel can never fall between the
	// two.
	e.mu.Lock()
	t := e.turn
	var reveal *revealHandle
	if t != nil {
		reveal = t.reveal
		if reveal == nil {
			t.cancelled = true
		}
	}
	e.mu.Unlock()

	if t == nil {
		return
	}
	if reveal != nil {
		reveal.Stop()
		return
	}
	t.cancel()
}

// Reset cancels any in-flight turn, clears the transcript, rotates the
// conversation identity and empties the pending attachment set.
func (e *Engine) Reset() {
	e.Cancel()
	e.store.Reset()
	if e.resolver != nil {
		e.resolver.Close()
		e.resolver.ClearAttachments()
	}
	e.logger.Info("conversation reset",
		"reset_token", e.store.Identity().ResetToken,
	)
}

// start registers the turn and launches its goroutine. The turn context
// is detached from the caller: a submitted turn outlives the UI event
// that triggered it and is aborted only through Cancel.
func (e *Engine) start(text string, attachments []conversation.AttachedDocument) (string, error) {
	user := conversation.NewMessage(conversation.SenderUser, text)
	user.Status = conversation.StatusDelivered
	user.Attachments = attachments
	assistant := conversation.NewMessage(conversation.SenderAssistant, "")

	ctx, cancel := context.WithCancel(context.Background())
	t := &turn{assistantID: assistant.ID, userID: user.ID, cancel: cancel}

	e.mu.Lock()
	if e.turn != nil {
		e.mu.Unlock()
		cancel()
		return "", ErrTurnInFlight
	}
	e.turn = t
	e.stats.TurnsStarted++
	e.mu.Unlock()

	e.store.Append(user)
	e.store.Append(assistant)

	paths := make([]string, 0, len(attachments))
	for _, doc := range attachments {
		paths = append(paths, doc.DocumentID)
	}

	go e.runTurn(ctx, t, text, paths)
	return assistant.ID, nil
}

func (e *Engine) runTurn(ctx context.Context, t *turn, text string, paths []string) {
	e.transition(t.assistantID, conversation.StatusSending, nil)

	identity := e.store.Identity()
	req := transport.Request{
		Message:        text,
		ConversationID: e.store.ConversationID(),
		OrganizationID: identity.OrganizationID,
		UserID:         identity.UserID,
		DocumentPaths:  paths,
	}

	if e.noStream {
		e.runComplete(ctx, t, req)
		return
	}
	e.runStreaming(ctx, t, req)
}

// runComplete handles the non-streaming path: one blocking call, then
// straight to reveal.
func (e *Engine) runComplete(ctx context.Context, t *turn, req transport.Request) {
	resp, err := e.client.Send(ctx, req)
	if err != nil {
		if e.wasCancelled(t) || errors.Is(err, context.Canceled) {
			e.settleCancelled(t)
			return
		}
		e.settleError(t, err, "")
		return
	}

	h, ok := e.beginReveal(t)
	if !ok {
		e.settleCancelled(t)
		return
	}
	e.store.SetConversationID(resp.ConversationID)
	e.transition(t.assistantID, conversation.StatusRevealing, func(m *conversation.Message) {
		m.Sources = resp.Sources
		m.FollowUps = resp.FollowUpSuggestions
		m.AgentTrace = resp.AgentSteps
	})
	e.startReveal(t, h, resp.Response)
}

// runStreaming accumulates chunks into the turn buffer. The buffer stays
// off the message until reveal begins, which is what makes
// cancel-during-streaming leave an empty cancelled message.
func (e *Engine) runStreaming(ctx context.Context, t *turn, req transport.Request) {
	st, err := e.client.Stream(ctx, req)
	if err != nil {
		if e.wasCancelled(t) || errors.Is(err, context.Canceled) {
			e.settleCancelled(t)
			return
		}
		e.settleError(t, err, "")
		return
	}
	defer st.Close()

	e.transition(t.assistantID, conversation.StatusStreaming, nil)

	var (
		buf       strings.Builder
		convID    string
		sources   []conversation.Source
		followUps []string
		steps     []conversation.AgentStep
	)

	for {
		chunk, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if e.wasCancelled(t) || errors.Is(err, context.Canceled) {
				e.settleCancelled(t)
				return
			}
			// Text decoded before the bad record is preserved.
			e.client.ReportStreamFailure(err)
			e.settleError(t, err, buf.String())
			return
		}

		e.metrics.ObserveChunk()
		e.mu.Lock()
		e.stats.ChunksReceived++
		e.mu.Unlock()

		if chunk.Err != "" {
			err := &transport.Error{Kind: transport.KindServer, Msg: chunk.Err}
			e.client.ReportStreamFailure(err)
			e.settleError(t, err, buf.String())
			return
		}

		buf.WriteString(chunk.Delta)
		if chunk.ConversationID != "" {
			convID = chunk.ConversationID
		}
		sources = append(sources, chunk.Sources...)
		followUps = append(followUps, chunk.FollowUps...)
		steps = append(steps, chunk.AgentSteps...)
		if chunk.Done {
			break
		}
	}

	h, ok := e.beginReveal(t)
	if !ok {
		e.settleCancelled(t)
		return
	}
	e.store.SetConversationID(convID)
	e.transition(t.assistantID, conversation.StatusRevealing, func(m *conversation.Message) {
		m.Sources = sources
		m.FollowUps = followUps
		m.AgentTrace = steps
	})
	e.startReveal(t, h, buf.String())
}

func (e *Engine) wasCancelled(t *turn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.cancelled
}

// transition moves the assistant message to the target status, applying
// fn under the same store update. Illegal moves are dropped with a log
// line rather than corrupting the machine.
func (e *Engine) transition(id string, to conversation.Status, fn func(*conversation.Message)) bool {
	applied := false
	e.store.Update(id, func(m *conversation.Message) {
		if !conversation.CanTransition(m.Status, to) {
			return
		}
		m.Status = to
		if fn != nil {
			fn(m)
		}
		applied = true
	})
	if !applied {
		e.logger.Warn("dropped illegal status transition",
			"message_id", id,
			"to", string(to),
		)
	}
	return applied
}

func (e *Engine) settleDelivered(t *turn, text string) {
	e.transition(t.assistantID, conversation.StatusDelivered, func(m *conversation.Message) {
		m.Text = text
	})
	if e.resolver != nil {
		e.resolver.ClearAttachments()
	}
	e.mu.Lock()
	e.stats.Delivered++
	e.stats.CharsRevealed += int64(len([]rune(text)))
	e.mu.Unlock()
	e.release(t)
}

func (e *Engine) settleCancelled(t *turn) {
	e.transition(t.assistantID, conversation.StatusCancelled, func(m *conversation.Message) {
		m.Text = ""
	})
	e.mu.Lock()
	e.stats.Cancelled++
	e.mu.Unlock()
	e.release(t)
}

func (e *Engine) settleError(t *turn, err error, partial string) {
	kind := transport.KindOf(err)
	e.transition(t.assistantID, conversation.StatusError, func(m *conversation.Message) {
		m.Text = partial
		m.ErrorKind = string(kind)
		m.ErrorText = transport.UserMessage(err)
	})
	e.logger.Warn("turn failed",
		"message_id", t.assistantID,
		"kind", string(kind),
		"error", err.Error(),
	)
	e.mu.Lock()
	e.stats.Failed++
	e.mu.Unlock()
	e.release(t)
}

// release retires the turn, making room for the next Send.
func (e *Engine) release(t *turn) {
	t.cancel()
	e.mu.Lock()
	if e.turn == t {
		e.turn = nil
	}
	e.mu.Unlock()
}
