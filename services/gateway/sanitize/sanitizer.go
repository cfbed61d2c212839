// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sanitize walks JSON-shaped values, replaces detected sensitive
// strings with session-scoped placeholders, restores placeholders in model
// output, and runs the residual-PII canary over outbound payloads.
package sanitize

import (
	"sort"
	"strings"

	"github.com/thomasdehartcpa/moltguard/services/gateway/detect"
	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

// Result is the outcome of one Sanitize call.
type Result struct {
	// Sanitized mirrors the input shape; only string leaves may differ.
	Sanitized any

	// Mapping is the session mapping table after this call.
	Mapping *vault.MappingTable

	// RedactionCount is the total number of bindings in the mapping,
	// including ones added by earlier calls sharing the same state.
	RedactionCount int

	// ByCategory is the current per-category counter map. Counters may
	// exceed this call's additions when the state was pre-populated.
	ByCategory map[detect.Category]int
}

// Sanitizer replaces sensitive values with placeholders. Construct with
// New; safe for concurrent use.
type Sanitizer struct {
	detector *detect.Detector
}

// New creates a Sanitizer around a detector.
func New(detector *detect.Detector) *Sanitizer {
	return &Sanitizer{detector: detector}
}

// Sanitize walks value and replaces detected sensitive strings with
// placeholders allocated through state. When state is nil a fresh detached
// state is used (per-request isolation). The input is never mutated.
func (s *Sanitizer) Sanitize(value any, state *vault.SessionState) Result {
	if state == nil {
		state = vault.NewState()
	}
	sanitized := s.walk(value, state)
	mapping := state.Mapping()
	return Result{
		Sanitized:      sanitized,
		Mapping:        mapping,
		RedactionCount: mapping.Len(),
		ByCategory:     state.Counters(),
	}
}

// walk recurses through maps and arrays, transforming string leaves.
// Structural-key values are copied verbatim; numbers, booleans, and null
// pass through.
func (s *Sanitizer) walk(value any, state *vault.SessionState) any {
	switch v := value.(type) {
	case string:
		return s.transform(v, state)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.walk(item, state)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if IsStructuralKey(k) {
				out[k] = item
				continue
			}
			out[k] = s.walk(item, state)
		}
		return out
	default:
		return value
	}
}

// transform applies the detector to one string leaf.
//
// Candidates are deduplicated by matched text (first occurrence wins) and
// applied longest first, so "Karen Wilson" is tokenized before "Karen"
// alone could be. A candidate whose text is no longer literally present
// was consumed by a longer match and is skipped WITHOUT burning a counter:
// allocator gaps teach upstream models that placeholder numbers are
// guessable, and a guessed [person_5] that never existed cannot be
// restored.
func (s *Sanitizer) transform(text string, state *vault.SessionState) string {
	matches := s.detector.Detect(text)
	if len(matches) == 0 {
		return text
	}

	seen := make(map[string]bool, len(matches))
	candidates := make([]detect.Match, 0, len(matches))
	for _, m := range matches {
		if m.Text == "" || seen[m.Text] {
			continue
		}
		seen[m.Text] = true
		candidates = append(candidates, m)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Text) > len(candidates[j].Text)
	})

	working := text
	for _, m := range candidates {
		if !strings.Contains(working, m.Text) {
			continue
		}
		token := state.Allocate(m.Text, m.Category)
		working = strings.ReplaceAll(working, m.Text, token)
	}
	return working
}
