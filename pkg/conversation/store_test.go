// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import "testing"

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusQueued, StatusSending},
		{StatusSending, StatusStreaming},
		{StatusSending, StatusRevealing},
		{StatusSending, StatusError},
		{StatusSending, StatusCancelled},
		{StatusStreaming, StatusRevealing},
		{StatusStreaming, StatusError},
		{StatusStreaming, StatusCancelled},
		{StatusRevealing, StatusDelivered},
		{StatusRevealing, StatusError},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusQueued, StatusStreaming},
		{StatusQueued, StatusDelivered},
		{StatusStreaming, StatusDelivered},
		{StatusRevealing, StatusCancelled},
		{StatusDelivered, StatusError},
		{StatusError, StatusSending},
		{StatusCancelled, StatusQueued},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusError, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusSending, StatusStreaming, StatusRevealing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestAppendAndUpdate(t *testing.T) {
	store := NewStore("org1", "user1")
	msg := NewMessage(SenderUser, "hello")
	store.Append(msg)

	if store.Len() != 1 {
		t.Fatalf("len = %d, want 1", store.Len())
	}

	if !store.Update(msg.ID, func(m *Message) { m.Status = StatusDelivered }) {
		t.Fatal("update of known id returned false")
	}
	if store.Update("missing", func(m *Message) {}) {
		t.Fatal("update of unknown id returned true")
	}

	got, ok := store.Get(msg.ID)
	if !ok || got.Status != StatusDelivered {
		t.Fatalf("message after update = %+v", got)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	store := NewStore("org1", "user1")
	msg := NewMessage(SenderUser, "hi")
	msg.Attachments = []AttachedDocument{{DocumentID: "d1", DisplayName: "A.pdf"}}
	store.Append(msg)

	got, _ := store.Get(msg.ID)
	got.Attachments[0].DocumentID = "mutated"
	got.Text = "mutated"

	fresh, _ := store.Get(msg.ID)
	if fresh.Attachments[0].DocumentID != "d1" || fresh.Text != "hi" {
		t.Error("Get leaked internal state")
	}
}

func TestNonTerminal(t *testing.T) {
	store := NewStore("org1", "user1")
	if _, ok := store.NonTerminal(); ok {
		t.Fatal("empty store reported an in-flight message")
	}

	user := NewMessage(SenderUser, "hi")
	user.Status = StatusDelivered
	store.Append(user)
	assistant := NewMessage(SenderAssistant, "")
	store.Append(assistant)

	id, ok := store.NonTerminal()
	if !ok || id != assistant.ID {
		t.Fatalf("NonTerminal = %q, %v; want assistant id", id, ok)
	}
}

func TestResetRotatesIdentity(t *testing.T) {
	store := NewStore("org1", "user1")
	store.Append(NewMessage(SenderUser, "hi"))
	store.SetConversationID("c1")
	before := store.Identity()

	store.Reset()

	if store.Len() != 0 {
		t.Error("reset did not clear the transcript")
	}
	if store.ConversationID() != "" {
		t.Error("reset did not drop the conversation id")
	}
	after := store.Identity()
	if after.ResetToken == before.ResetToken {
		t.Error("reset did not rotate the token")
	}
	if after.OrganizationID != before.OrganizationID || after.UserID != before.UserID {
		t.Error("reset changed the org/user identity")
	}
}

func TestSetConversationIDIgnoresEmpty(t *testing.T) {
	store := NewStore("org1", "user1")
	store.SetConversationID("c1")
	store.SetConversationID("")
	if store.ConversationID() != "c1" {
		t.Error("empty id cleared an established conversation")
	}
}

func TestWatchCoalesces(t *testing.T) {
	store := NewStore("org1", "user1")
	store.Append(NewMessage(SenderUser, "a"))
	store.Append(NewMessage(SenderUser, "b"))

	select {
	case <-store.Watch():
	default:
		t.Fatal("no notification after appends")
	}
	select {
	case <-store.Watch():
		t.Fatal("watch should hold at most one pending signal")
	default:
	}
}
