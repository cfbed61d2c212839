// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the gateway.
//
// # Description
//
// Metrics cover the proxy pipeline (requests, upstream latency, streaming
// downgrades), the sanitization engine (redactions by category, canary
// trips), and the vault (live entry gauge). Values are labels-only; no
// metric ever carries original values or placeholder text.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "moltguard"

// GatewayMetrics holds all Prometheus metrics for the gateway. Initialize
// once at startup via NewGatewayMetrics.
type GatewayMetrics struct {
	// RequestsTotal counts proxy requests by route and outcome.
	// Labels: route (anthropic, openai, gemini), status (success, upstream_error,
	// canary_abort, bad_request, internal_error)
	RequestsTotal *prometheus.CounterVec

	// RedactionsTotal counts placeholder allocations by category.
	RedactionsTotal *prometheus.CounterVec

	// CanaryTripsTotal counts outbound payloads aborted by the canary.
	CanaryTripsTotal prometheus.Counter

	// StreamDowngradesTotal counts streaming requests forced to buffered
	// mode because their session carried placeholders.
	StreamDowngradesTotal prometheus.Counter

	// VaultEntries tracks live vault entries across sessions.
	VaultEntries prometheus.Gauge

	// UpstreamLatencySeconds measures upstream round-trip time.
	// Labels: backend
	UpstreamLatencySeconds *prometheus.HistogramVec

	// RateLimitedTotal counts requests rejected by the client limiter.
	RateLimitedTotal prometheus.Counter
}

// NewGatewayMetrics registers all gateway metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a private
// registry so parallel tests never collide.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)
	return &GatewayMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Proxy requests by route and outcome.",
		}, []string{"route", "status"}),
		RedactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "redactions_total",
			Help:      "Placeholder allocations by category.",
		}, []string{"category"}),
		CanaryTripsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "canary_trips_total",
			Help:      "Outbound payloads aborted by the residual PII check.",
		}),
		StreamDowngradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_downgrades_total",
			Help:      "Streaming requests forced to buffered mode for restoration.",
		}),
		VaultEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "vault_entries",
			Help:      "Live token vault entries across all sessions.",
		}),
		UpstreamLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_latency_seconds",
			Help:      "Upstream round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
	}
}
