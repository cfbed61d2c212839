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
	"log/slog"
	"regexp"
)

// ErrCanaryTripped is returned when an outbound payload still carries
// PII-shaped digits after sanitization. The request must not be forwarded.
var ErrCanaryTripped = errors.New("outbound payload failed the residual PII check")

var (
	canarySSNRe = regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`)
	canaryEINRe = regexp.MustCompile(`\b\d{2}-\d{7}\b`)
)

// AssertNoLeakedPII scans a serialized outbound payload for residual
// SSN/ITIN- and EIN-shaped digit groups.
//
// This is defense in depth behind the sanitizer, not a correctness
// mechanism: a hit means the detector failed and the request is aborted.
// The offending substrings are NEVER logged; only shape counts are.
func AssertNoLeakedPII(payload string) error {
	ssnHits := len(canarySSNRe.FindAllStringIndex(payload, -1))
	einHits := len(canaryEINRe.FindAllStringIndex(payload, -1))
	if ssnHits == 0 && einHits == 0 {
		return nil
	}
	slog.Error("canary check found residual PII shapes in the outbound payload",
		"ssn_shaped", ssnHits,
		"ein_shaped", einHits,
	)
	return ErrCanaryTripped
}
