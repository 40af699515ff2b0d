// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transport is the HTTP client for the Dockside chat backend.
//
// It layers a circuit breaker and a retry policy around plain HTTP calls
// and classifies every failure into an ErrorKind so callers can branch on
// error category rather than error text.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docksideai/dockside/pkg/conversation"
	"github.com/docksideai/dockside/pkg/logging"
	"github.com/docksideai/dockside/pkg/stream"
)

// HTTPClient is the subset of *http.Client the transport needs. Tests
// substitute a fake that records requests and scripts responses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is the chat payload sent to the backend.
type Request struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	OrganizationID string   `json:"organization_id"`
	UserID         string   `json:"user_id"`
	DocumentPaths  []string `json:"document_paths,omitempty"`
	Stream         bool     `json:"stream,omitempty"`
}

// Response is a complete non-streaming chat answer.
type Response struct {
	Response            string                   `json:"response"`
	ConversationID      string                   `json:"conversation_id"`
	Sources             []conversation.Source    `json:"sources,omitempty"`
	FollowUpSuggestions []string                 `json:"follow_up_suggestions,omitempty"`
	AgentSteps          []conversation.AgentStep `json:"agent_steps,omitempty"`
}

// Config assembles a Client. BaseURL is the only required field.
type Config struct {
	BaseURL string

	// HTTP is the underlying client. Default: *http.Client with a
	// 120 second timeout, generous because answers can take a while.
	HTTP HTTPClient

	Breaker *Breaker
	Retry   RetryPolicy
	Logger  *logging.Logger
	Metrics *Metrics
}

// Client issues chat calls against the backend.
//
// # Description
//
// Every Send passes three gates in order: the circuit breaker (refused
// calls never touch the network), the retry policy (retryable kinds get
// re-attempted with exponential backoff), and classification (HTTP and
// transport failures become *Error values with a Kind). Each individual
// attempt reports its outcome to the breaker, so a run of failed retries
// moves the breaker toward open even within one Send.
//
// # Thread Safety
//
// Safe for concurrent use; all mutable state lives in the breaker, which
// locks internally.
type Client struct {
	baseURL string
	http    HTTPClient
	breaker *Breaker
	retry   RetryPolicy
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewClient creates a Client, applying defaults for zero-value config.
func NewClient(cfg Config) *Client {
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(BreakerConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    cfg.HTTP,
		breaker: cfg.Breaker,
		retry:   cfg.Retry,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("dockside/transport"),
	}
}

// Breaker exposes the client's breaker for status displays.
func (c *Client) Breaker() *Breaker { return c.breaker }

// Send posts a chat request and returns the complete answer.
//
// When the breaker is open the call fails immediately with KindCircuitOpen
// and no network traffic. Retryable failures are re-attempted per the
// retry policy; the error returned is the one from the final attempt.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "transport.Send",
		trace.WithAttributes(
			attribute.Bool("chat.stream", false),
			attribute.String("chat.conversation_id", req.ConversationID),
		))
	defer span.End()

	if !c.breaker.Available() {
		c.metrics.observeBreaker(true)
		c.metrics.observeRequest("refused", KindCircuitOpen)
		span.SetAttributes(attribute.String("error.kind", string(KindCircuitOpen)))
		span.SetStatus(codes.Error, "circuit open")
		return nil, &Error{Kind: KindCircuitOpen, Msg: "request refused", Err: ErrCircuitOpen}
	}
	c.metrics.observeBreaker(false)

	req.Stream = false
	var out *Response
	attempt := 0
	err := c.retry.Do(ctx, "chat", c.logger, func() error {
		if attempt > 0 {
			c.metrics.observeRetry()
		}
		attempt++

		resp, err := c.attempt(ctx, req)
		if err != nil {
			c.reportOutcome(err)
			return err
		}
		out = resp
		c.breaker.ReportSuccess()
		return nil
	})
	span.SetAttributes(attribute.Int("chat.attempts", attempt))
	if err != nil {
		kind := KindOf(err)
		c.metrics.observeRequest("error", kind)
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		span.SetStatus(codes.Error, string(kind))
		return nil, err
	}
	c.metrics.observeRequest("ok", "")
	return out, nil
}

// Stream posts a chat request and returns the undecoded response stream.
//
// Streaming calls are a single attempt: once bytes have been consumed from
// the body a replayed request would duplicate the answer, so failures that
// occur mid-stream surface to the caller instead of retrying here. The
// breaker still guards entry and is informed of the connection outcome.
// The caller owns the returned stream and must Close it.
func (c *Client) Stream(ctx context.Context, req Request) (*stream.Stream, error) {
	ctx, span := c.tracer.Start(ctx, "transport.Stream",
		trace.WithAttributes(
			attribute.Bool("chat.stream", true),
			attribute.String("chat.conversation_id", req.ConversationID),
		))
	defer span.End()

	if !c.breaker.Available() {
		c.metrics.observeBreaker(true)
		c.metrics.observeRequest("refused", KindCircuitOpen)
		span.SetAttributes(attribute.String("error.kind", string(KindCircuitOpen)))
		span.SetStatus(codes.Error, "circuit open")
		return nil, &Error{Kind: KindCircuitOpen, Msg: "request refused", Err: ErrCircuitOpen}
	}
	c.metrics.observeBreaker(false)

	req.Stream = true
	httpResp, err := c.post(ctx, req)
	if err != nil {
		c.reportOutcome(err)
		kind := KindOf(err)
		c.metrics.observeRequest("error", kind)
		span.SetAttributes(
			attribute.Int("chat.attempts", 1),
			attribute.String("error.kind", string(kind)),
		)
		span.SetStatus(codes.Error, string(kind))
		return nil, err
	}
	c.breaker.ReportSuccess()
	c.metrics.observeRequest("ok", "")
	span.SetAttributes(attribute.Int("chat.attempts", 1))
	return stream.NewWithCloser(httpResp.Body), nil
}

// ReportStreamFailure feeds a mid-stream failure back into the breaker.
// The session engine calls this when decoding fails after Stream returned.
func (c *Client) ReportStreamFailure(err error) {
	c.reportOutcome(err)
}

// reportOutcome feeds an attempt's failure into the breaker. The breaker
// tracks backend health only: a user-initiated cancel says nothing about
// the backend and must never move it toward open.
func (c *Client) reportOutcome(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if KindOf(err).Retryable() {
		c.breaker.ReportFailure()
	}
}

// attempt runs one non-streaming HTTP round trip and decodes the body.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	httpResp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classify(err)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Kind: KindServer, Status: httpResp.StatusCode,
			Msg: "unreadable response body", Err: err}
	}
	return &out, nil
}

// post issues the HTTP request and classifies transport-level and HTTP
// status failures. On success the caller owns the response body.
func (c *Client) post(ctx context.Context, req Request) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Msg: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindValidation, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		c.logger.Debug("backend returned non-200",
			"status", httpResp.StatusCode,
			"body", string(snippet),
		)
		return nil, statusError(httpResp.StatusCode, string(snippet))
	}
	return httpResp, nil
}

// classify maps a transport-level error to an *Error. Context
// cancellation passes through untouched so callers can distinguish a
// user-initiated cancel from a genuine failure.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: "request timed out", Err: err}
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Msg: "request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Msg: "request failed", Err: err}
}

// statusError maps an HTTP status to an *Error. 400 and 422 are payload
// rejections; 408, 429 and all 5xx count as retryable server failures.
func statusError(status int, body string) *Error {
	msg := fmt.Sprintf("backend returned %d", status)
	if body != "" {
		msg = fmt.Sprintf("backend returned %d: %s", status, body)
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindValidation, Status: status, Msg: msg}
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return &Error{Kind: KindServer, Status: status, Msg: msg}
	default:
		return &Error{Kind: KindValidation, Status: status, Msg: msg}
	}
}
