// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewGatewayMetrics_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.RequestsTotal.WithLabelValues("openai", "success").Inc()
	m.RedactionsTotal.WithLabelValues("ssn").Add(2)
	m.CanaryTripsTotal.Inc()
	m.VaultEntries.Set(7)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("openai", "success")); got != 1 {
		t.Errorf("requests_total = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.RedactionsTotal.WithLabelValues("ssn")); got != 2 {
		t.Errorf("redactions_total = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.VaultEntries); got != 7 {
		t.Errorf("vault_entries = %f, want 7", got)
	}
}

func TestNewGatewayMetrics_SeparateRegistriesDoNotCollide(t *testing.T) {
	// Tests create private registries; two instances must coexist.
	_ = NewGatewayMetrics(prometheus.NewRegistry())
	_ = NewGatewayMetrics(prometheus.NewRegistry())
}
