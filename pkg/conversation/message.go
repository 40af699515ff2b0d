// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation owns the chat transcript: the ordered message
// sequence, per-conversation identity, and the message status machine data.
//
// The package holds no behavior beyond bookkeeping. Status transitions are
// driven by the session engine; this package only defines which transitions
// are legal and guards the transcript against concurrent mutation.
package conversation

import "time"

// Status is the lifecycle state of a Message.
//
// Allowed transitions:
//
//	queued ──► sending ──┬──► revealing ──► delivered
//	                     ├──► streaming ──► revealing
//	                     │         │
//	                     │         └──► cancelled / error
//	                     └──► error / cancelled
//
// delivered, error and cancelled are terminal. Terminal messages are never
// mutated again and never removed from the transcript.
type Status string

const (
	// StatusQueued is the initial state, set the instant the user submits.
	StatusQueued Status = "queued"

	// StatusSending means the transport call is in flight.
	StatusSending Status = "sending"

	// StatusStreaming means chunks are accumulating in the turn buffer.
	// The buffer is not visible on the message until revealing begins.
	StatusStreaming Status = "streaming"

	// StatusRevealing means the buffered answer is being played back
	// character by character.
	StatusRevealing Status = "revealing"

	// StatusDelivered is the terminal success state.
	StatusDelivered Status = "delivered"

	// StatusError is the terminal failure state.
	StatusError Status = "error"

	// StatusCancelled is the terminal user-aborted state.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusError, StatusCancelled:
		return true
	}
	return false
}

// transitions is the legal transition table, kept as data so the engine can
// validate every move instead of encoding the machine in nested callbacks.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusSending},
	StatusSending:   {StatusStreaming, StatusRevealing, StatusError, StatusCancelled},
	StatusStreaming: {StatusRevealing, StatusError, StatusCancelled},
	StatusRevealing: {StatusDelivered, StatusError},
}

// CanTransition reports whether from → to is a legal status move.
// Terminal states have no outgoing transitions.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Origin records how an attached document entered the pending set.
type Origin string

const (
	// OriginTypedMention marks documents attached via an @mention.
	OriginTypedMention Origin = "typed-mention"

	// OriginDroppedFile marks documents attached by the upload collaborator.
	OriginDroppedFile Origin = "dropped-file"
)

// AttachedDocument is a resolved document reference carried by a turn.
// Before send it lives in the mention resolver's pending set; once a turn
// is created it is copied read-only onto the user message.
type AttachedDocument struct {
	DocumentID   string `json:"document_id"`
	DisplayName  string `json:"display_name"`
	OriginSource Origin `json:"origin_source"`
	OriginTag    string `json:"origin_tag,omitempty"`
}

// Source is a backend citation for an assistant answer.
type Source struct {
	Path        string  `json:"path"`
	DisplayName string  `json:"display_name,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// AgentStep is one entry of the backend's reasoning trace. The core treats
// it as opaque display data.
type AgentStep struct {
	Tool        string `json:"tool,omitempty"`
	Thought     string `json:"thought,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// Message is a single transcript entry. Messages are created by the session
// engine, mutated only through Store.Update, and never deleted — cancelled
// and errored messages stay visible with their terminal status.
type Message struct {
	ID          string             `json:"id"`
	Sender      Sender             `json:"sender"`
	Text        string             `json:"text"`
	Status      Status             `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	Attachments []AttachedDocument `json:"attachments,omitempty"`
	Sources     []Source           `json:"sources,omitempty"`
	FollowUps   []string           `json:"follow_ups,omitempty"`
	AgentTrace  []AgentStep        `json:"agent_trace,omitempty"`

	// ErrorKind and ErrorText are set only when Status is StatusError.
	// ErrorKind holds the transport taxonomy name (e.g. "circuit_open")
	// so the UI can distinguish breaker trips from per-request failures.
	ErrorKind string `json:"error_kind,omitempty"`
	ErrorText string `json:"error_text,omitempty"`
}
