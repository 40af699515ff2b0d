// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mention

import (
	"context"
	"sync"

	"github.com/docksideai/dockside/pkg/conversation"
	"github.com/docksideai/dockside/pkg/logging"
)

// DefaultMaxAttachments caps the pending attachment set.
const DefaultMaxAttachments = 5

// ResolverConfig assembles a Resolver.
type ResolverConfig struct {
	Lookup Lookup

	// MaxAttachments caps the pending set. Default: DefaultMaxAttachments.
	MaxAttachments int

	Logger *logging.Logger
}

// Resolver drives the @mention dropdown and owns the pending attachment
// set for the unsent turn.
//
// # Description
//
// Open detects the trigger span and kicks off an asynchronous candidate
// lookup; each Open supersedes the previous lookup by cancelling its
// context, and stale results are discarded by generation check so a slow
// response never overwrites a newer one. A failed lookup degrades to an
// empty candidate list — it is logged but never surfaces as an error and
// never touches the chat circuit breaker.
//
// # Thread Safety
//
// Safe for concurrent use. Lookup results arrive on a background
// goroutine; consumers watch Updates to re-read candidates.
type Resolver struct {
	lookup  Lookup
	max     int
	logger  *logging.Logger
	updates chan struct{}

	mu          sync.Mutex
	open        bool
	trigger     Trigger
	candidates  []Candidate
	selected    int
	generation  uint64
	cancelPrior context.CancelFunc
	attachments []conversation.AttachedDocument
}

// NewResolver creates a Resolver, applying defaults for zero values.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxAttachments <= 0 {
		cfg.MaxAttachments = DefaultMaxAttachments
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Resolver{
		lookup:  cfg.Lookup,
		max:     cfg.MaxAttachments,
		logger:  cfg.Logger,
		updates: make(chan struct{}, 1),
	}
}

// Updates signals when an asynchronous lookup lands. The channel is
// coalescing: one pending signal at most, read candidates after receiving.
func (r *Resolver) Updates() <-chan struct{} { return r.updates }

// Open inspects the input around the caret and, when a mention trigger is
// active, starts a candidate lookup. Returns false — closing any open
// dropdown — when no trigger is present.
func (r *Resolver) Open(ctx context.Context, text string, caret int) bool {
	trigger, ok := DetectTrigger(text, caret)
	if !ok {
		r.Close()
		return false
	}

	r.mu.Lock()
	if r.cancelPrior != nil {
		r.cancelPrior()
	}
	lookupCtx, cancel := context.WithCancel(ctx)
	r.cancelPrior = cancel
	r.generation++
	gen := r.generation
	r.open = true
	r.trigger = trigger
	r.mu.Unlock()

	go r.search(lookupCtx, gen, trigger.Query)
	return true
}

func (r *Resolver) search(ctx context.Context, gen uint64, query string) {
	candidates, err := r.lookup.Search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return // superseded or dropdown closed
		}
		r.logger.Debug("mention lookup failed",
			"query", query,
			"error", err.Error(),
		)
		candidates = nil
	}

	r.mu.Lock()
	if !r.open || gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.candidates = candidates
	if r.selected >= len(candidates) {
		r.selected = 0
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Resolver) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// Active reports whether the dropdown is open.
func (r *Resolver) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Candidates returns a copy of the current candidate list.
func (r *Resolver) Candidates() []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Selected returns the highlighted candidate index.
func (r *Resolver) Selected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Navigate moves the selection by delta, wrapping modulo the candidate
// count in either direction. No-op on an empty list.
func (r *Resolver) Navigate(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.candidates)
	if n == 0 {
		return
	}
	r.selected = ((r.selected+delta)%n + n) % n
}

// Select resolves the highlighted candidate into the input text.
//
// The @query span is replaced with the inline tag @[DisplayName] and the
// document joins the pending attachment set, subject to the maximum and
// duplicate invariants — a rejected attach still rewrites the text. The
// returned caret sits at the end of the inserted tag. Returns ok=false
// when the dropdown is closed or empty; the input is untouched.
func (r *Resolver) Select(text string) (newText string, newCaret int, doc *conversation.AttachedDocument, ok bool) {
	r.mu.Lock()
	if !r.open || len(r.candidates) == 0 {
		r.mu.Unlock()
		return text, -1, nil, false
	}
	candidate := r.candidates[r.selected]
	trigger := r.trigger
	r.mu.Unlock()

	tag := "@[" + candidate.DisplayName + "]"
	runes := []rune(text)
	end := trigger.Start + 1 + len([]rune(trigger.Query))
	if trigger.Start > len(runes) || end > len(runes) {
		return text, -1, nil, false
	}
	newText = string(runes[:trigger.Start]) + tag + string(runes[end:])
	newCaret = trigger.Start + len([]rune(tag))

	attached := conversation.AttachedDocument{
		DocumentID:   candidate.DocumentID,
		DisplayName:  candidate.DisplayName,
		OriginSource: conversation.OriginTypedMention,
		OriginTag:    tag,
	}
	r.Attach(attached)
	r.Close()
	return newText, newCaret, &attached, true
}

// Close clears candidates and the selection index. Already-attached
// documents are never touched. Safe to call when nothing is open.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelPrior != nil {
		r.cancelPrior()
		r.cancelPrior = nil
	}
	r.open = false
	r.trigger = Trigger{}
	r.candidates = nil
	r.selected = 0
}

// Attach adds a document to the pending set. Duplicates (same DocumentID)
// and additions beyond the maximum are rejected silently; the set is
// unchanged and false is returned.
func (r *Resolver) Attach(doc conversation.AttachedDocument) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.attachments) >= r.max {
		return false
	}
	for _, existing := range r.attachments {
		if existing.DocumentID == doc.DocumentID {
			return false
		}
	}
	r.attachments = append(r.attachments, doc)
	return true
}

// Attachments returns a copy of the pending set.
func (r *Resolver) Attachments() []conversation.AttachedDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]conversation.AttachedDocument, len(r.attachments))
	copy(out, r.attachments)
	return out
}

// ClearAttachments empties the pending set. The session engine calls this
// only after a turn is confirmed delivered, so a failed send keeps its
// attachments available for retry.
func (r *Resolver) ClearAttachments() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments = nil
}
