// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

// PersonRecognizer is the injected name-recognition capability.
//
// # Description
//
// Implementations produce person-name spans from a text buffer. The
// detector combines recognizer output with its own anchored heuristics
// (email headers, salutations) and filters every candidate through the
// structural-line and exclusion rules, so an implementation may be either
// a small on-host NLP model or a pure rule-based scanner.
//
// # Requirements
//
//  1. Runs entirely on-host. No network calls.
//  2. Deterministic for a given input.
//  3. Returns only spans on non-structural lines, and never values
//     matching a tax-form label (Form 1040, Schedule C, ...).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; Detect may be called
// from many request goroutines at once.
type PersonRecognizer interface {
	// Recognize returns person-name spans found in text, in scan order.
	Recognize(text string) []Match
}

// RuleBasedRecognizer is the default PersonRecognizer: casing-pattern
// n-gram heuristics gated on an embedded first-name list. It holds no
// state and costs one regex scan per heuristic family.
type RuleBasedRecognizer struct{}

// NewRuleBasedRecognizer returns the rule-based recognizer.
func NewRuleBasedRecognizer() *RuleBasedRecognizer {
	return &RuleBasedRecognizer{}
}

// Recognize implements PersonRecognizer.
func (r *RuleBasedRecognizer) Recognize(text string) []Match {
	return detectHeuristicNames(text, nil)
}

var _ PersonRecognizer = (*RuleBasedRecognizer)(nil)
