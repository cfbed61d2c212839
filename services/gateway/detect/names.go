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

import (
	_ "embed"
	"regexp"
	"strings"
)

//go:embed firstnames.txt
var firstNamesData string

// firstNames maps lowercase known first names to true. Loaded once from the
// embedded list; lines starting with # are comments.
var firstNames = func() map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(firstNamesData, "\n") {
		w := strings.TrimSpace(strings.ToLower(line))
		if w != "" && !strings.HasPrefix(w, "#") {
			names[w] = true
		}
	}
	return names
}()

// IsKnownFirstName reports whether the word appears in the embedded
// first-name list (case-insensitive).
func IsKnownFirstName(w string) bool {
	return firstNames[strings.ToLower(w)]
}

// =============================================================================
// Exclusion Lists
// =============================================================================

// The exclusion union suppresses name candidates whose every word is a known
// non-name. The lists are split by provenance so each can grow independently:
// tax-domain vocabulary, structural and technical terms, calendar months,
// US states, and common organization words.

var taxTermExclusions = wordSet(
	"tax", "taxes", "taxpayer", "irs", "federal", "state", "income", "wages",
	"refund", "return", "returns", "deduction", "deductions", "withholding",
	"filing", "form", "forms", "schedule", "statement", "wage", "earned",
	"credit", "dependent", "dependents", "exemption", "standard", "itemized",
	"gross", "adjusted", "taxable", "liability", "estimated", "quarterly",
	"extension", "amended", "audit", "penalty", "interest", "payment",
	"payments", "social", "security", "medicare", "employer", "employee",
)

var technicalTermExclusions = wordSet(
	"error", "warning", "info", "debug", "trace", "fatal", "null", "true",
	"false", "json", "yaml", "http", "https", "api", "url", "uri", "uuid",
	"token", "tokens", "request", "response", "server", "client", "config",
	"configuration", "session", "stream", "streaming", "model", "models",
	"system", "user", "assistant", "function", "tool", "tools", "message",
	"messages", "content", "role", "type", "name", "value", "object", "array",
	"string", "number", "boolean", "file", "files", "path", "directory",
	"database", "index", "query", "thank", "thanks", "hello", "dear", "best",
	"regards", "sincerely", "subject", "please", "note", "important",
)

var monthExclusions = wordSet(
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december", "jan", "feb", "mar",
	"apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
)

var stateExclusions = wordSet(
	"alabama", "alaska", "arizona", "arkansas", "california", "colorado",
	"connecticut", "delaware", "florida", "georgia", "hawaii", "idaho",
	"illinois", "indiana", "iowa", "kansas", "kentucky", "louisiana", "maine",
	"maryland", "massachusetts", "michigan", "minnesota", "mississippi",
	"missouri", "montana", "nebraska", "nevada", "hampshire", "jersey",
	"mexico", "york", "carolina", "dakota", "ohio", "oklahoma", "oregon",
	"pennsylvania", "rhode", "island", "tennessee", "texas", "utah",
	"vermont", "virginia", "washington", "wisconsin", "wyoming", "new",
	"north", "south", "west", "east",
)

var orgExclusions = wordSet(
	"inc", "llc", "corp", "corporation", "company", "bank", "trust",
	"group", "holdings", "partners", "associates", "services", "solutions",
	"systems", "technologies", "enterprises", "agency", "department",
	"bureau", "office", "internal", "revenue", "service", "treasury",
	"united", "states", "america", "american", "national", "first",
	"capital", "chase", "wells", "fargo", "fidelity", "vanguard", "schwab",
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// isExcludedWord reports whether the word belongs to the exclusion union.
func isExcludedWord(w string) bool {
	lw := strings.ToLower(strings.Trim(w, ".,!?;:"))
	return taxTermExclusions[lw] || technicalTermExclusions[lw] ||
		monthExclusions[lw] || stateExclusions[lw] || orgExclusions[lw]
}

// allWordsExcluded reports whether every word of the candidate is in the
// exclusion union. Candidates like "Internal Revenue" never survive; a
// candidate keeping at least one unlisted word does.
func allWordsExcluded(candidate string) bool {
	for _, w := range strings.Fields(candidate) {
		if !isExcludedWord(w) {
			return false
		}
	}
	return true
}

// =============================================================================
// Structural Line Detection
// =============================================================================

// structuralLineRe matches lines that carry document structure rather than
// prose: markdown headings, bold markers, list bullets, numbered lists,
// and underscore rules. Name candidates on such lines are rejected; they
// are nearly always labels, not people.
var structuralLineRe = regexp.MustCompile(`^\s*(?:#|\*\*|-|\*|\d+\.|_)`)

// taxFormLabelRe matches tax-form labels that title-case like names.
var taxFormLabelRe = regexp.MustCompile(`^(?:Form|Schedule|Statement|Wage|Tax)\b`)

// onStructuralLine reports whether the byte offset sits on a structural line.
func onStructuralLine(text string, offset int) bool {
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := strings.IndexByte(text[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text)
	} else {
		lineEnd += offset
	}
	return structuralLineRe.MatchString(text[lineStart:lineEnd])
}

// =============================================================================
// Pattern-Anchored Name Heuristics
// =============================================================================

var (
	// From: Karen Wilson <karen@example.com>
	emailHeaderNameRe = regexp.MustCompile(`(?m)^(?:From|To|Cc|Bcc|Reply-To|Sender):\s*([A-Z][a-z]+(?:\s[A-Z][a-z]+)+)\s*<[^>\s]+@[^>\s]+>`)

	// Karen Wilson <karen@example.com> anywhere in the text.
	angleEmailNameRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)+)\s*<[^>\s]+@[^>\s]+>`)

	// Hi Karen, / Dear Karen Wilson: / Thanks, Karen / Hi John and Jane
	salutationNameRe = regexp.MustCompile(`\b(?:Hi|Hey|Hello|Dear|Thanks|Thank you),?\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)(?:\s+and\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?))?\b`)

	// Title-case word runs, scanned for bigram/trigram candidates.
	titleRunRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+){1,3}\b`)

	// ALL-CAPS word runs (W-2 forms print names in capitals).
	capsRunRe = regexp.MustCompile(`\b[A-Z]{2,}(?:\s[A-Z]{2,}){1,2}\b`)

	// lowercase words, paired into bigram candidates by the scanner.
	// A single bigram regex would consume "ask john" and never see the
	// overlapping "john smith".
	lowerWordRe = regexp.MustCompile(`\b[a-z]+\b`)
)

// acceptNameCandidate applies the shared rejection filters: structural
// lines, tax-form labels, and the all-words-excluded rule.
func acceptNameCandidate(text string, start int, candidate string) bool {
	if onStructuralLine(text, start) {
		return false
	}
	if taxFormLabelRe.MatchString(candidate) {
		return false
	}
	if allWordsExcluded(candidate) {
		return false
	}
	return true
}

// detectAnchoredNames finds names anchored by email headers, adjacent angle
// emails, and salutations. These anchors carry enough signal that the
// first-name list is not consulted.
func detectAnchoredNames(text string, out []Match) []Match {
	for _, re := range []*regexp.Regexp{emailHeaderNameRe, angleEmailNameRe, salutationNameRe} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			// Every capture group is a separate name candidate; the
			// salutation pattern may carry a coordinated second name.
			for g := 2; g+1 < len(loc); g += 2 {
				start, end := loc[g], loc[g+1]
				if start < 0 {
					continue
				}
				candidate := text[start:end]
				if !acceptNameCandidate(text, start, candidate) {
					continue
				}
				out = append(out, Match{Start: start, End: end, Category: CategoryPerson, Text: candidate})
			}
		}
	}
	return out
}

// detectHeuristicNames finds names from casing patterns:
//
//   - title-case bigrams where both words pass the exclusion lists or one
//     word is a known first name
//   - title-case trigrams and longer runs gated on a known first name
//   - ALL-CAPS bigrams/trigrams gated on a known first name
//   - lowercase bigrams whose first word is a known first name
func detectHeuristicNames(text string, out []Match) []Match {
	for _, loc := range titleRunRe.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		words := strings.Fields(candidate)
		ok := false
		switch {
		case len(words) == 2:
			ok = !isExcludedWord(words[0]) && !isExcludedWord(words[1])
			if !ok {
				ok = IsKnownFirstName(words[0]) || IsKnownFirstName(words[1])
			}
		default:
			for _, w := range words {
				if IsKnownFirstName(w) {
					ok = true
					break
				}
			}
		}
		if !ok || !acceptNameCandidate(text, loc[0], candidate) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryPerson, Text: candidate})
	}

	for _, loc := range capsRunRe.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		hasFirst := false
		for _, w := range strings.Fields(candidate) {
			if IsKnownFirstName(w) {
				hasFirst = true
				break
			}
		}
		if !hasFirst || !acceptNameCandidate(text, loc[0], candidate) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryPerson, Text: candidate})
	}

	words := lowerWordRe.FindAllStringIndex(text, -1)
	for i := 0; i+1 < len(words); i++ {
		// Adjacent words separated by exactly one space.
		if words[i+1][0] != words[i][1]+1 || text[words[i][1]] != ' ' {
			continue
		}
		first := text[words[i][0]:words[i][1]]
		second := text[words[i+1][0]:words[i+1][1]]
		if !IsKnownFirstName(first) || isExcludedWord(first) || isExcludedWord(second) {
			continue
		}
		candidate := first + " " + second
		if !acceptNameCandidate(text, words[i][0], candidate) {
			continue
		}
		out = append(out, Match{Start: words[i][0], End: words[i+1][1], Category: CategoryPerson, Text: candidate})
	}
	return out
}
