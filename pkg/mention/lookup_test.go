// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mention

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type recordedHTTP struct {
	response *http.Response
	err      error
	requests []*http.Request
}

func (f *recordedHTTP) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func TestSearchBuildsQueryAndDecodes(t *testing.T) {
	httpClient := &recordedHTTP{response: &http.Response{
		StatusCode: 200,
		Body: io.NopCloser(strings.NewReader(
			`{"results":[{"documentId":"d1","displayName":"Invoice.pdf","score":0.92}]}`)),
	}}
	lookup := NewHTTPLookup(LookupConfig{
		BaseURL:        "http://index",
		OrganizationID: "org1",
		HTTP:           httpClient,
	})

	candidates, err := lookup.Search(context.Background(), "Inv")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(candidates) != 1 || candidates[0].DocumentID != "d1" {
		t.Fatalf("candidates = %+v", candidates)
	}

	req := httpClient.requests[0]
	if req.URL.Path != "/search" {
		t.Errorf("path = %q", req.URL.Path)
	}
	query := req.URL.Query()
	if query.Get("q") != "Inv" || query.Get("organizationId") != "org1" {
		t.Errorf("query = %v", query)
	}
}

func TestSearchNon200IsError(t *testing.T) {
	httpClient := &recordedHTTP{response: &http.Response{
		StatusCode: 500,
		Body:       io.NopCloser(strings.NewReader("boom")),
	}}
	lookup := NewHTTPLookup(LookupConfig{BaseURL: "http://index", HTTP: httpClient})

	if _, err := lookup.Search(context.Background(), "x"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
