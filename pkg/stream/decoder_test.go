// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestNextDecodesDataRecords(t *testing.T) {
	input := "data: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\",\"conversation_id\":\"c1\"}\n\n"
	s := New(strings.NewReader(input))

	first, err := s.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if first.Delta != "Hel" {
		t.Errorf("first delta = %q, want Hel", first.Delta)
	}

	second, err := s.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if second.Delta != "lo" || second.ConversationID != "c1" {
		t.Errorf("second chunk = %+v", second)
	}

	if _, err := s.Next(); err != io.EOF {
		t.Errorf("end of stream err = %v, want io.EOF", err)
	}
}

func TestNextSkipsCommentsAndBlankLines(t *testing.T) {
	input := ": keep-alive\n\n\ndata: {\"delta\":\"x\"}\n"
	s := New(strings.NewReader(input))

	chunk, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if chunk.Delta != "x" {
		t.Errorf("delta = %q, want x", chunk.Delta)
	}
}

func TestNextAcceptsBarePayload(t *testing.T) {
	// Some backends omit the data: prefix on the final record.
	s := New(strings.NewReader("{\"done\":true}\n"))
	chunk, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !chunk.Done {
		t.Error("done flag not decoded")
	}
}

func TestNextMalformedRecordPoisonsStream(t *testing.T) {
	input := "data: {\"delta\":\"ok\"}\n\ndata: {not json}\n\ndata: {\"delta\":\"never\"}\n\n"
	s := New(strings.NewReader(input))

	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}

	_, err := s.Next()
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}

	// Every later call repeats the same error.
	if _, again := s.Next(); !errors.Is(again, err) && again != err {
		t.Errorf("poisoned stream returned %v, want the original error", again)
	}
}

func TestNextDecodesTrailingMetadata(t *testing.T) {
	input := `data: {"sources":[{"path":"a.pdf","score":0.9}],"follow_up_suggestions":["more?"],"done":true}` + "\n"
	s := New(strings.NewReader(input))

	chunk, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(chunk.Sources) != 1 || chunk.Sources[0].Path != "a.pdf" {
		t.Errorf("sources = %+v", chunk.Sources)
	}
	if len(chunk.FollowUps) != 1 {
		t.Errorf("follow-ups = %+v", chunk.FollowUps)
	}
}

type countingCloser struct {
	io.Reader
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestCloseIsIdempotent(t *testing.T) {
	closer := &countingCloser{Reader: strings.NewReader("")}
	s := NewWithCloser(closer)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if closer.closed != 1 {
		t.Errorf("body closed %d times, want 1", closer.closed)
	}
}
