// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for one Client. All methods are
// safe on a nil receiver so metrics stay optional.
type Metrics struct {
	requests    *prometheus.CounterVec
	retries     prometheus.Counter
	breakerOpen prometheus.Gauge
	chunks      prometheus.Counter
}

// NewMetrics creates and registers the transport collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dockside",
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Backend chat requests by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dockside",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Retry attempts issued by the transport client.",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dockside",
			Subsystem: "transport",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker is refusing calls.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dockside",
			Subsystem: "transport",
			Name:      "stream_chunks_total",
			Help:      "Decoded streaming chunks.",
		}),
	}
	reg.MustRegister(m.requests, m.retries, m.breakerOpen, m.chunks)
	return m
}

func (m *Metrics) observeRequest(outcome string, kind ErrorKind) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome, string(kind)).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observeBreaker(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerOpen.Set(1)
	} else {
		m.breakerOpen.Set(0)
	}
}

// ObserveChunk counts one decoded streaming chunk. Exported because chunk
// consumption happens in the session engine, not inside the client.
func (m *Metrics) ObserveChunk() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}
