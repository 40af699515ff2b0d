// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/docksideai/dockside/pkg/conversation"
	"github.com/docksideai/dockside/pkg/session"
	"github.com/docksideai/dockside/pkg/ux"
)

type storeChangedMsg struct{}
type mentionUpdatedMsg struct{}

// maxInputHistory caps the up-arrow recall buffer.
const maxInputHistory = 50

// chatModel is the bubbletea model for the interactive session. It renders
// the transcript from the store on every change notification; it never
// mutates messages itself.
type chatModel struct {
	parts    *components
	input    textinput.Model
	viewport viewport.Model
	ready    bool
	notice   string

	// input history, newest last
	history []string
	histIdx int
}

func newChatModel(parts *components) *chatModel {
	input := textinput.New()
	input.Placeholder = "Ask about your documents (@name to attach)"
	input.Focus()
	input.CharLimit = 4000
	return &chatModel{
		parts: parts,
		input: input,
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(m.waitStore(), m.waitMentions(), textinput.Blink)
}

func (m *chatModel) waitStore() tea.Cmd {
	watch := m.parts.store.Watch()
	return func() tea.Msg {
		<-watch
		return storeChangedMsg{}
	}
}

func (m *chatModel) waitMentions() tea.Cmd {
	updates := m.parts.resolver.Updates()
	return func() tea.Msg {
		<-updates
		return mentionUpdatedMsg{}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		inputHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - inputHeight
		}
		m.refreshTranscript()
		return m, nil

	case storeChangedMsg:
		m.refreshTranscript()
		return m, m.waitStore()

	case mentionUpdatedMsg:
		return m, m.waitMentions()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	resolver := m.parts.resolver
	engine := m.parts.engine

	switch msg.String() {
	case "ctrl+c":
		engine.Cancel()
		return m, tea.Quit

	case "esc":
		if resolver.Active() {
			resolver.Close()
			return m, nil
		}
		engine.Cancel()
		return m, nil

	case "ctrl+n":
		engine.Reset()
		m.notice = "Conversation reset."
		return m, nil

	case "ctrl+r":
		if id, ok := m.lastError(); ok {
			if _, err := engine.Retry(id); err != nil {
				m.notice = err.Error()
			}
		}
		return m, nil

	case "up":
		if resolver.Active() {
			resolver.Navigate(-1)
			return m, nil
		}
		m.recallHistory(-1)
		return m, nil

	case "down":
		if resolver.Active() {
			resolver.Navigate(1)
			return m, nil
		}
		m.recallHistory(1)
		return m, nil

	case "tab":
		if resolver.Active() {
			m.selectMention()
		}
		return m, nil

	case "enter":
		if resolver.Active() && len(resolver.Candidates()) > 0 {
			m.selectMention()
			return m, nil
		}
		return m, m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	resolver.Open(context.Background(), m.input.Value(), m.input.Position())
	return m, cmd
}

func (m *chatModel) submit() tea.Cmd {
	text := m.input.Value()
	_, err := m.parts.engine.Send(text)
	switch {
	case errors.Is(err, session.ErrTurnInFlight):
		m.notice = "Wait for the current answer (Esc cancels it)."
		return nil
	case errors.Is(err, session.ErrEmptyMessage):
		return nil
	case err != nil:
		m.notice = err.Error()
		return nil
	}
	m.history = append(m.history, text)
	if len(m.history) > maxInputHistory {
		m.history = m.history[len(m.history)-maxInputHistory:]
	}
	m.histIdx = len(m.history)
	m.notice = ""
	m.input.Reset()
	m.parts.resolver.Close()
	return nil
}

func (m *chatModel) selectMention() {
	newText, newCaret, _, ok := m.parts.resolver.Select(m.input.Value())
	if !ok {
		return
	}
	m.input.SetValue(newText)
	m.input.SetCursor(newCaret)
}

func (m *chatModel) recallHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.histIdx += delta
	if m.histIdx < 0 {
		m.histIdx = 0
	}
	if m.histIdx >= len(m.history) {
		m.histIdx = len(m.history)
		m.input.Reset()
		return
	}
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

// lastError returns the most recent errored assistant message.
func (m *chatModel) lastError() (string, bool) {
	messages := m.parts.store.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == conversation.SenderAssistant &&
			messages[i].Status == conversation.StatusError {
			return messages[i].ID, true
		}
	}
	return "", false
}

func (m *chatModel) refreshTranscript() {
	if !m.ready {
		return
	}
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.parts.store.Messages(), m.viewport.Width))
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func (m *chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderDropdown())
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

func (m *chatModel) renderDropdown() string {
	resolver := m.parts.resolver
	if !resolver.Active() {
		return ""
	}
	candidates := resolver.Candidates()
	if len(candidates) == 0 {
		return ux.Styles.Muted.Render("  (searching documents...)") + "\n"
	}
	selected := resolver.Selected()
	var b strings.Builder
	for i, candidate := range candidates {
		line := "  " + candidate.DisplayName
		if i == selected {
			line = ux.Styles.Highlight.Render("> " + candidate.DisplayName)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *chatModel) renderStatusLine() string {
	engine := m.parts.engine
	var segments []string

	if !engine.CanSend() {
		segments = append(segments, "answering... (Esc to cancel)")
	}
	if attachments := m.parts.resolver.Attachments(); len(attachments) > 0 {
		names := make([]string, len(attachments))
		for i, doc := range attachments {
			names[i] = doc.DisplayName
		}
		segments = append(segments, fmt.Sprintf("attached: %s", strings.Join(names, ", ")))
	}
	if snapshot := m.parts.client.Breaker().Snapshot(); snapshot.Open {
		segments = append(segments, ux.Styles.Warning.Render("backend unavailable"))
	}
	if m.notice != "" {
		segments = append(segments, ux.Styles.Warning.Render(m.notice))
	}
	if len(segments) == 0 {
		stats := engine.Stats()
		segments = append(segments, fmt.Sprintf("%d turns · Ctrl+R retry · Ctrl+N reset · Ctrl+C quit", stats.TurnsStarted))
	}
	return ux.Styles.Muted.Render(strings.Join(segments, "  ·  "))
}

// renderTranscript formats the transcript for the viewport.
func renderTranscript(messages []conversation.Message, width int) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Sender {
		case conversation.SenderUser:
			b.WriteString(ux.Styles.UserLabel.Render("You"))
			b.WriteString("  ")
			b.WriteString(msg.Text)
			for _, doc := range msg.Attachments {
				b.WriteString("\n    ")
				b.WriteString(ux.Styles.Mention.Render(string(ux.IconDoc) + " " + doc.DisplayName))
			}
		case conversation.SenderAssistant:
			b.WriteString(ux.Styles.AssistantLabel.Render("Dockside"))
			b.WriteString("  ")
			b.WriteString(renderAssistant(msg))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderAssistant(msg conversation.Message) string {
	switch msg.Status {
	case conversation.StatusQueued, conversation.StatusSending:
		return ux.Styles.Muted.Render("thinking...")
	case conversation.StatusStreaming:
		return ux.Styles.Muted.Render("receiving...")
	case conversation.StatusCancelled:
		return ux.Styles.Muted.Render("(cancelled)")
	case conversation.StatusError:
		text := msg.ErrorText
		if msg.Text != "" {
			text = msg.Text + "\n" + text
		}
		return ux.Styles.Error.Render(text)
	}

	var b strings.Builder
	b.WriteString(msg.Text)
	if msg.Status == conversation.StatusRevealing {
		b.WriteString("▌")
	}
	if msg.Status == conversation.StatusDelivered {
		for _, source := range msg.Sources {
			b.WriteString("\n    ")
			b.WriteString(ux.Styles.SourceLine.Render(string(ux.IconBullet) + " " + sourceLabel(source)))
		}
		for _, followUp := range msg.FollowUps {
			b.WriteString("\n    ")
			b.WriteString(ux.Styles.Muted.Render(string(ux.IconArrow) + " " + followUp))
		}
	}
	return b.String()
}

func sourceLabel(source conversation.Source) string {
	if source.DisplayName != "" {
		return source.DisplayName
	}
	return source.Path
}
