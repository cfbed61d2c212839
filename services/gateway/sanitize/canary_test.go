// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sanitize

import (
	"errors"
	"testing"
)

func TestCanary_TripsOnSSNShape(t *testing.T) {
	for _, payload := range []string{
		`{"content":"my number is 123-45-6789"}`,
		`{"content":"spaced 123 45 6789 form"}`,
	} {
		if err := AssertNoLeakedPII(payload); !errors.Is(err, ErrCanaryTripped) {
			t.Errorf("expected a canary trip for %q", payload)
		}
	}
}

func TestCanary_TripsOnEINShape(t *testing.T) {
	if err := AssertNoLeakedPII(`{"content":"ein 12-3456789 leaked"}`); !errors.Is(err, ErrCanaryTripped) {
		t.Error("expected a canary trip on the EIN shape")
	}
}

func TestCanary_PassesOnCleanPayload(t *testing.T) {
	for _, payload := range []string{
		`{"content":"redacted as [ssn_1] and [ein_1]"}`,
		`{"content":"plain text, a date 2024-01-15, and $1,200"}`,
		"",
	} {
		if err := AssertNoLeakedPII(payload); err != nil {
			t.Errorf("clean payload %q must pass, got %v", payload, err)
		}
	}
}

func TestCanary_ErrorNeverEchoesPayload(t *testing.T) {
	err := AssertNoLeakedPII(`{"content":"123-45-6789"}`)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); len(got) > 0 && (containsDigitRun(got)) {
		t.Errorf("canary error must not carry the offending digits: %q", got)
	}
}

func containsDigitRun(s string) bool {
	run := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}
