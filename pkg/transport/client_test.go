// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// scriptedHTTP plays back canned responses and records every request.
type scriptedHTTP struct {
	responses []*http.Response
	errs      []error
	requests  []*http.Request
}

func (f *scriptedHTTP) Do(req *http.Request) (*http.Response, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var resp *http.Response
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestSendDecodesResponse(t *testing.T) {
	httpClient := &scriptedHTTP{responses: []*http.Response{
		jsonResponse(200, `{"response":"Hello","conversation_id":"c1","sources":[{"path":"a.pdf"}]}`),
	}}
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Retry: fastRetry(3)})

	resp, err := client.Send(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Response)
	assert.Equal(t, "c1", resp.ConversationID)
	require.Len(t, resp.Sources, 1)
	require.Len(t, httpClient.requests, 1)
	assert.Equal(t, "/api/v1/chat", httpClient.requests[0].URL.Path)
}

func TestSendValidationFailureIsSingleAttempt(t *testing.T) {
	httpClient := &scriptedHTTP{responses: []*http.Response{
		jsonResponse(422, `{"detail":"bad"}`),
	}}
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Retry: fastRetry(3)})

	_, err := client.Send(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Len(t, httpClient.requests, 1)
}

func TestSendServerFailureRetries(t *testing.T) {
	httpClient := &scriptedHTTP{responses: []*http.Response{
		jsonResponse(500, "boom"),
		jsonResponse(503, "still down"),
		jsonResponse(200, `{"response":"ok","conversation_id":"c1"}`),
	}}
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Retry: fastRetry(3)})

	resp, err := client.Send(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Response)
	assert.Len(t, httpClient.requests, 3)
}

func TestSendRefusedWhileBreakerOpen(t *testing.T) {
	httpClient := &scriptedHTTP{}
	breaker := NewBreaker(BreakerConfig{Threshold: 1})
	breaker.ReportFailure()
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Breaker: breaker, Retry: fastRetry(3)})

	_, err := client.Send(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindCircuitOpen, KindOf(err))
	assert.Empty(t, httpClient.requests, "an open breaker must not touch the network")
}

func TestSendFailuresMoveBreakerTowardOpen(t *testing.T) {
	httpClient := &scriptedHTTP{responses: []*http.Response{
		jsonResponse(500, "boom"),
		jsonResponse(500, "boom"),
		jsonResponse(500, "boom"),
	}}
	breaker := NewBreaker(BreakerConfig{Threshold: 3})
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Breaker: breaker, Retry: fastRetry(3)})

	_, err := client.Send(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	// Three failed attempts within one Send trip the threshold-3 breaker.
	assert.False(t, breaker.Available())
}

func TestCancelledSendsDoNotTripBreaker(t *testing.T) {
	// What http.Client returns when the request context is cancelled
	// mid-flight: a url.Error wrapping context.Canceled.
	cancelled := &url.Error{Op: "Post", URL: "http://backend/api/v1/chat", Err: context.Canceled}
	httpClient := &scriptedHTTP{errs: []error{cancelled, cancelled, cancelled}}
	breaker := NewBreaker(BreakerConfig{Threshold: 3})
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Breaker: breaker, Retry: fastRetry(1)})

	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), Request{Message: "hi"})
		require.Error(t, err)
	}
	assert.True(t, breaker.Available(), "user cancellations say nothing about backend health")
	assert.Zero(t, breaker.Snapshot().FailureCount)
}

func TestStreamSetsAcceptHeaderAndDecodes(t *testing.T) {
	body := "data: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\",\"done\":true}\n\n"
	httpClient := &scriptedHTTP{responses: []*http.Response{jsonResponse(200, body)}}
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Retry: fastRetry(3)})

	st, err := client.Stream(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	defer st.Close()

	require.Len(t, httpClient.requests, 1)
	assert.Equal(t, "text/event-stream", httpClient.requests[0].Header.Get("Accept"))

	first, err := st.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hel", first.Delta)
	second, err := st.Next()
	require.NoError(t, err)
	assert.Equal(t, "lo", second.Delta)
	assert.True(t, second.Done)
}

func TestStreamConnectFailureIsSingleAttempt(t *testing.T) {
	httpClient := &scriptedHTTP{responses: []*http.Response{jsonResponse(500, "boom")}}
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Retry: fastRetry(3)})

	_, err := client.Stream(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Len(t, httpClient.requests, 1, "streaming calls must not retry")
}

func TestClassifyDeadline(t *testing.T) {
	err := classify(context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestClassifyCancelPassesThrough(t *testing.T) {
	err := classify(context.Canceled)
	assert.Equal(t, context.Canceled, err)
}

func TestSpansCarryRequestAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	httpClient := &scriptedHTTP{responses: []*http.Response{
		jsonResponse(500, "boom"),
		jsonResponse(200, `{"response":"ok","conversation_id":"c1"}`),
		jsonResponse(422, "no"),
	}}
	client := NewClient(Config{BaseURL: "http://backend", HTTP: httpClient, Retry: fastRetry(3)})

	_, err := client.Send(context.Background(), Request{Message: "hi", ConversationID: "c1"})
	require.NoError(t, err)
	_, err = client.Send(context.Background(), Request{Message: "hi"})
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	success := attributeMap(spans[0].Attributes)
	assert.Equal(t, "c1", success["chat.conversation_id"])
	assert.Equal(t, int64(2), success["chat.attempts"])
	assert.NotContains(t, success, "error.kind")

	failure := attributeMap(spans[1].Attributes)
	assert.Equal(t, int64(1), failure["chat.attempts"])
	assert.Equal(t, string(KindValidation), failure["error.kind"])
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestStatusErrorMapping(t *testing.T) {
	assert.Equal(t, KindValidation, statusError(400, "").Kind)
	assert.Equal(t, KindValidation, statusError(422, "").Kind)
	assert.Equal(t, KindServer, statusError(408, "").Kind)
	assert.Equal(t, KindServer, statusError(429, "").Kind)
	assert.Equal(t, KindServer, statusError(500, "").Kind)
	assert.Equal(t, KindValidation, statusError(404, "").Kind)
}
