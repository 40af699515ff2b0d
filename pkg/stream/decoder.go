// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream decodes the backend's streaming chat responses.
//
// The wire format is Server-Sent Events: each record is a line of the form
//
//	data: {"delta":"Hel"}\n
//	\n
//
// terminated by end of input. The decoder only parses; it performs no I/O
// beyond reading the wrapped reader and no rendering or state management.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docksideai/dockside/pkg/conversation"
)

// Chunk is one decoded record of a streaming response. Most chunks carry
// only Delta; the final records of a stream may carry citations, follow-up
// suggestions, the reasoning trace and the conversation id.
type Chunk struct {
	Delta          string                   `json:"delta,omitempty"`
	ConversationID string                   `json:"conversation_id,omitempty"`
	Sources        []conversation.Source    `json:"sources,omitempty"`
	FollowUps      []string                 `json:"follow_up_suggestions,omitempty"`
	AgentSteps     []conversation.AgentStep `json:"agent_steps,omitempty"`
	Done           bool                     `json:"done,omitempty"`
	Err            string                   `json:"error,omitempty"`
}

// DecodeError reports a malformed record. The chunks decoded before the
// bad record remain valid; the rest of the stream is abandoned.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed stream record %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Stream incrementally decodes one streaming response body.
//
// A Stream is single-use and not restartable: once Next returns an error
// (including io.EOF) every further call returns the same error. Callers
// that want to retry must issue a fresh transport call.
//
// Not safe for concurrent use; one goroutine owns a Stream.
type Stream struct {
	scanner *bufio.Scanner
	closer  io.Closer
	err     error
}

// New wraps a reader producing SSE records.
func New(r io.Reader) *Stream {
	scanner := bufio.NewScanner(r)
	// Answers can carry large source lists in a single record.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{scanner: scanner}
}

// NewWithCloser wraps a response body; Close releases it.
func NewWithCloser(rc io.ReadCloser) *Stream {
	s := New(rc)
	s.closer = rc
	return s
}

// Next returns the next decoded chunk.
//
// Returns io.EOF at clean end of input. A malformed data record returns a
// *DecodeError and poisons the stream. Blank lines (event delimiters) and
// comment lines (":" prefix) are skipped, matching the SSE spec.
func (s *Stream) Next() (*Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		payload := line
		if strings.HasPrefix(line, "data:") {
			payload = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.err = &DecodeError{Line: line, Err: err}
			return nil, s.err
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.err = err
		return nil, err
	}
	s.err = io.EOF
	return nil, io.EOF
}

// Close releases the underlying response body, if any. Safe to call more
// than once.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer.Close()
}
