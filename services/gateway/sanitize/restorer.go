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
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/thomasdehartcpa/moltguard/services/gateway/detect"
)

// fabricatedRe matches anything placeholder-shaped over a known category,
// with or without brackets. Built once from the closed category set.
var fabricatedRe = func() *regexp.Regexp {
	names := make([]string, len(detect.AllCategories))
	for i, c := range detect.AllCategories {
		names[i] = regexp.QuoteMeta(string(c))
	}
	return regexp.MustCompile(`\[?(?:` + strings.Join(names, "|") + `)_\d+\]?`)
}()

// Restore replaces placeholders in value with their original values from
// mapping. Object and array recursion mirrors the sanitizer, including the
// structural-key skip.
func Restore(value any, mapping MappingView) any {
	switch v := value.(type) {
	case string:
		return RestoreString(v, mapping)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Restore(item, mapping)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if IsStructuralKey(k) {
				out[k] = item
				continue
			}
			out[k] = Restore(item, mapping)
		}
		return out
	default:
		return value
	}
}

// MappingView is the read surface the restorer needs from a mapping table.
type MappingView interface {
	Get(token string) (string, bool)
	Contains(token string) bool
	Tokens() []string
	Len() int
}

// RestoreString applies the three restoration passes to one string.
//
//  1. Canonical: replace every [cat_n] literally, longest token first so
//     [person_1] can never shadow [person_10].
//  2. Bracket-stripped: replace the bare cat_n as a whole word; some
//     upstream models eat square brackets as markdown.
//  3. Fabricated scan: any remaining placeholder-shaped token with no
//     mapping entry is left untouched and logged. Substituting invented
//     prose for it would produce confident, wrong output; the raw token
//     at least shows the user something went missing.
func RestoreString(text string, mapping MappingView) string {
	if mapping == nil || mapping.Len() == 0 {
		return warnFabricated(text, mapping)
	}

	tokens := mapping.Tokens()
	sort.SliceStable(tokens, func(i, j int) bool { return len(tokens[i]) > len(tokens[j]) })

	for _, tok := range tokens {
		original, ok := mapping.Get(tok)
		if !ok {
			continue
		}
		text = strings.ReplaceAll(text, tok, original)
	}

	for _, tok := range tokens {
		original, ok := mapping.Get(tok)
		if !ok {
			continue
		}
		bare := strings.TrimSuffix(strings.TrimPrefix(tok, "["), "]")
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(bare) + `\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, original)
	}

	return warnFabricated(text, mapping)
}

// warnFabricated logs placeholder-shaped tokens that survived restoration.
// Tokens still present in the mapping are left alone silently; they can
// only appear here through double-processing of an already-restored string.
func warnFabricated(text string, mapping MappingView) string {
	for _, hit := range fabricatedRe.FindAllString(text, -1) {
		if mapping != nil && mapping.Contains(hit) {
			continue
		}
		slog.Warn("fabricated placeholder passed through unrestored", "token", hit)
	}
	return text
}

// RestoreSSELine restores one SSE line in place: the "data: " prefix is
// preserved, the [DONE] sentinel is passed through, JSON payloads are
// restored recursively, and anything unparseable falls back to string
// restoration.
func RestoreSSELine(line string, mapping MappingView) string {
	const prefix = "data: "
	if !strings.HasPrefix(line, prefix) {
		return RestoreString(line, mapping)
	}
	payload := strings.TrimPrefix(line, prefix)
	if strings.TrimSpace(payload) == "[DONE]" {
		return line
	}

	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return prefix + RestoreString(payload, mapping)
	}
	restored, err := json.Marshal(Restore(parsed, mapping))
	if err != nil {
		return prefix + RestoreString(payload, mapping)
	}
	return prefix + string(restored)
}
