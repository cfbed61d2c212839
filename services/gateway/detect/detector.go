// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect produces sensitive-value candidates from text buffers.
//
// # Description
//
// The detector layers context-window scans, fixed regex patterns, name
// heuristics, and secret detection over a single text buffer and returns
// the union of candidates in a deterministic order. It deliberately does
// NOT deduplicate or resolve overlaps; the sanitizer reconciles candidates
// (dedupe by text, longest first) when it applies placeholders.
//
// # Layer Order
//
//  1. Bank-context numerics (routing numbers, bank accounts)
//  2. Financial-context account numerics
//  3. Fixed-pattern entities (url, email, cards, ssn/itin/ein, ...)
//  4. Tax years
//  5. Dates, with DOB promotion
//  6. Context-aware currency amounts (no dollar sign)
//  7. Person names (recognizer + anchored heuristics)
//  8. Secrets (prefixed, bearer, high-entropy tokens)
//
// # Thread Safety
//
// A Detector is immutable after construction and safe for concurrent use.
//
// # Failure Semantics
//
// Detect never fails: all patterns are RE2 (linear time), and byte-offset
// scanning means malformed UTF-8 regions simply yield no matches.
package detect

import "unicode/utf8"

// Detector produces entity candidates from text. Construct with New.
type Detector struct {
	recognizer PersonRecognizer
}

// New creates a Detector with the given person-name recognizer. A nil
// recognizer falls back to the rule-based implementation.
func New(recognizer PersonRecognizer) *Detector {
	if recognizer == nil {
		recognizer = NewRuleBasedRecognizer()
	}
	return &Detector{recognizer: recognizer}
}

// Detect scans text and returns all candidates in layer order. The result
// is deterministic for a given input and shares no state with the Detector.
func (d *Detector) Detect(text string) []Match {
	if text == "" {
		return nil
	}

	var out []Match
	out = detectBankNumbers(text, out)
	out = detectFinancialAccounts(text, out)
	out = d.detectFixedPatterns(text, out)
	out = detectTaxYears(text, out)
	out = detectDates(text, out)
	out = detectContextAmounts(text, out)
	out = d.detectPersons(text, out)
	out = detectSecrets(text, out)
	return out
}

// detectFixedPatterns runs the ordered layer-3 regex table.
func (d *Detector) detectFixedPatterns(text string, out []Match) []Match {
	for _, p := range fixedPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			s := text[loc[0]:loc[1]]
			if !utf8.ValidString(s) {
				continue
			}
			if p.validate != nil && !p.validate(s) {
				continue
			}
			out = append(out, Match{Start: loc[0], End: loc[1], Category: p.category, Text: s})
		}
	}
	return out
}

// detectPersons merges recognizer output with the anchored heuristics,
// re-applying the shared rejection filters to whatever the recognizer
// returns.
func (d *Detector) detectPersons(text string, out []Match) []Match {
	for _, m := range d.recognizer.Recognize(text) {
		if m.Category == "" {
			m.Category = CategoryPerson
		}
		if !acceptNameCandidate(text, m.Start, m.Text) {
			continue
		}
		out = append(out, m)
	}
	return detectAnchoredNames(text, out)
}
