// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mention

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/docksideai/dockside/pkg/logging"
)

// Candidate is one document suggestion for an in-progress mention.
// Candidates are transient: produced per keystroke, never persisted.
type Candidate struct {
	DocumentID  string  `json:"documentId"`
	DisplayName string  `json:"displayName"`
	Score       float64 `json:"score"`
}

// Lookup searches the document index for mention candidates. The server
// returns results ranked; the client does not re-sort.
type Lookup interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// httpDoer is the slice of *http.Client the lookup needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPLookup queries the document index over HTTP.
//
// Lookups sit outside the chat resilience policy: a failure yields an
// empty candidate list and never touches the circuit breaker. A rate
// limiter caps request volume since Search fires on every keystroke.
type HTTPLookup struct {
	baseURL string
	orgID   string
	http    httpDoer
	limiter *rate.Limiter
	logger  *logging.Logger
}

// LookupConfig assembles an HTTPLookup.
type LookupConfig struct {
	BaseURL        string
	OrganizationID string

	// HTTP is the underlying client. Default: *http.Client with a
	// 5 second timeout; suggestion lookups should fail fast.
	HTTP httpDoer

	// RequestsPerSecond caps lookup volume. Default: 10.
	RequestsPerSecond float64

	Logger *logging.Logger
}

// NewHTTPLookup creates a lookup, applying defaults for zero values.
func NewHTTPLookup(cfg LookupConfig) *HTTPLookup {
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &HTTPLookup{
		baseURL: cfg.BaseURL,
		orgID:   cfg.OrganizationID,
		http:    cfg.HTTP,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 3),
		logger:  cfg.Logger,
	}
}

// Search queries GET /search?q=&organizationId= and returns the ranked
// candidates. Respects ctx cancellation while waiting on the limiter.
func (l *HTTPLookup) Search(ctx context.Context, query string) ([]Candidate, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("organizationId", l.orgID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned %d", resp.StatusCode)
	}

	var out struct {
		Results []Candidate `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out.Results, nil
}
