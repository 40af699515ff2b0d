// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identity names a conversation. A conversation is identified by the
// (organization, user) pair plus a reset token; Reset rotates the token,
// which is what makes the post-reset transcript a new conversation even
// though the same user is talking.
type Identity struct {
	OrganizationID string
	UserID         string
	ResetToken     string
}

// Store owns the ordered transcript for one conversation.
//
// # Description
//
// The store is append-only: messages are added with Append and mutated in
// place through Update. Nothing is ever removed except by Reset, which
// clears the transcript and rotates the identity.
//
// # Thread Safety
//
// Store is safe for concurrent use. Reads return copies; callers never see
// internal message pointers.
//
// # Assumptions
//
//   - Message IDs are unique (the engine assigns uuids)
//   - Only the session engine mutates messages
type Store struct {
	mu             sync.Mutex
	identity       Identity
	conversationID string
	messages       []*Message
	watch          chan struct{}
}

// NewStore creates an empty transcript for the given organization and user.
func NewStore(organizationID, userID string) *Store {
	return &Store{
		identity: Identity{
			OrganizationID: organizationID,
			UserID:         userID,
			ResetToken:     uuid.New().String(),
		},
		watch: make(chan struct{}, 1),
	}
}

// Identity returns the current conversation identity.
func (s *Store) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// ConversationID returns the server-assigned conversation id, or "" before
// the first successful exchange.
func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversationID records the server-assigned conversation id. Empty
// values are ignored so a response without an id cannot clear an
// established one.
func (s *Store) SetConversationID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()
}

// NewMessage builds a queued message ready for Append. The timestamp is
// set here so user and assistant entries of one turn order consistently.
func NewMessage(sender Sender, text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Text:      text,
		Status:    StatusQueued,
		Timestamp: time.Now(),
	}
}

// Append adds a message to the end of the transcript.
func (s *Store) Append(msg *Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// Update applies fn to the message with the given id under the store lock
// and notifies watchers. Returns false if the id is unknown.
func (s *Store) Update(id string, fn func(*Message)) bool {
	s.mu.Lock()
	var found *Message
	for _, msg := range s.messages {
		if msg.ID == id {
			found = msg
			break
		}
	}
	if found != nil {
		fn(found)
	}
	s.mu.Unlock()

	if found == nil {
		return false
	}
	s.notify()
	return true
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			return copyMessage(msg), true
		}
	}
	return Message{}, false
}

// Messages returns a copy of the transcript in append order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, copyMessage(msg))
	}
	return out
}

// Len returns the number of messages in the transcript.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// NonTerminal returns the id of the message currently in a non-terminal
// state, if any. The session engine keeps at most one.
func (s *Store) NonTerminal() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if !msg.Status.Terminal() {
			return msg.ID, true
		}
	}
	return "", false
}

// Reset clears the transcript, rotates the reset token and drops the
// server conversation id. The caller must settle any in-flight turn first.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.conversationID = ""
	s.identity.ResetToken = uuid.New().String()
	s.mu.Unlock()
	s.notify()
}

// Watch returns a coalescing change-notification channel. One receive may
// cover several mutations; consumers re-read Messages after each receive.
func (s *Store) Watch() <-chan struct{} {
	return s.watch
}

func (s *Store) notify() {
	select {
	case s.watch <- struct{}{}:
	default:
	}
}

func copyMessage(msg *Message) Message {
	out := *msg
	if msg.Attachments != nil {
		out.Attachments = append([]AttachedDocument(nil), msg.Attachments...)
	}
	if msg.Sources != nil {
		out.Sources = append([]Source(nil), msg.Sources...)
	}
	if msg.FollowUps != nil {
		out.FollowUps = append([]string(nil), msg.FollowUps...)
	}
	if msg.AgentTrace != nil {
		out.AgentTrace = append([]AgentStep(nil), msg.AgentTrace...)
	}
	return out
}
