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

import "regexp"

// fixedPattern pairs a compiled regex with its category and an optional
// per-match validator.
//
// IMPORTANT: Order matters. Earlier categories take precedence on overlap
// because the sanitizer dedupes by matched text in detection order. For
// example the ITIN pattern must run before the SSN pattern so that a
// 9-prefixed NNN-NN-NNNN is labelled itin, never ssn.
type fixedPattern struct {
	category Category
	re       *regexp.Regexp
	validate func(string) bool
}

// fixedPatterns is the ordered layer-3 pattern table. All patterns are
// RE2 (linear time); none backtrack.
var fixedPatterns = []fixedPattern{
	// URLs before emails: a URL may embed an @ (userinfo) and must win.
	{
		category: CategoryURL,
		re:       regexp.MustCompile(`(?:https?://|www\.)[^\s<>"']+`),
	},
	{
		category: CategoryEmail,
		re:       regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	// Grouped card number: 4x4 digits separated by spaces or dashes.
	{
		category: CategoryCreditCard,
		re:       regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b`),
	},
	// Ungrouped card number: 16-19 consecutive digits.
	{
		category: CategoryBankCard,
		re:       regexp.MustCompile(`\b\d{16,19}\b`),
	},
	// Dollar-prefixed amounts.
	{
		category: CategoryCurrency,
		re:       regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{1,2})?`),
	},
	// ITIN: 9-prefixed NNN-NN-NNNN. Must precede the SSN pattern.
	{
		category: CategoryITIN,
		re:       regexp.MustCompile(`\b9\d{2}[-\s]\d{2}[-\s]\d{4}\b`),
	},
	// SSN: NNN-NN-NNNN not starting with 9 (those are ITINs).
	{
		category: CategorySSN,
		re:       regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`),
		validate: func(s string) bool { return s[0] != '9' },
	},
	{
		category: CategoryEIN,
		re:       regexp.MustCompile(`\b\d{2}-\d{7}\b`),
	},
	{
		category: CategoryIBAN,
		re:       regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
	},
	{
		category: CategoryIP,
		re:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		validate: validIPv4,
	},
	{
		category: CategoryPhone,
		re:       regexp.MustCompile(`(?:\+?1[-.\s])?(?:\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`),
	},
	// Street address with a recognized suffix, optional unit designator.
	{
		category: CategoryAddress,
		re: regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][A-Za-z]*\s+){1,3}` +
			`(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Court|Ct|Circle|Cir|Way|Place|Pl|Terrace|Ter|Parkway|Pkwy|Highway|Hwy)\.?` +
			`(?:,?\s+(?:Apt|Apartment|Suite|Ste|Unit|#)\.?\s*[A-Za-z0-9\-]+)?\b`),
	},
	// PO Box.
	{
		category: CategoryAddress,
		re:       regexp.MustCompile(`\b[Pp]\.?\s?[Oo]\.?\s?Box\s+\d+\b`),
	},
	// Suffix-less street line anchored by a trailing city/state/ZIP.
	{
		category: CategoryAddress,
		re: regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][A-Za-z]*\s+){1,3}[A-Z][A-Za-z]*,\s+` +
			`[A-Z][a-z]+(?:\s[A-Z][a-z]+)?,?\s+[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`),
	},
	// City, ST 12345 without a street line.
	{
		category: CategoryPartialAddress,
		re:       regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)?,\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`),
	},
}

// validIPv4 rejects dotted quads with an octet above 255.
func validIPv4(s string) bool {
	octet := 0
	digits := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			if digits == 0 || octet > 255 {
				return false
			}
			octet, digits = 0, 0
			continue
		}
		octet = octet*10 + int(s[i]-'0')
		digits++
	}
	return true
}

// validABAPrefix checks the two leading digits of a routing number against
// the Federal Reserve district ranges (00-12, 21-32, 61-72, 80).
func validABAPrefix(s string) bool {
	p := int(s[0]-'0')*10 + int(s[1]-'0')
	switch {
	case p <= 12:
		return true
	case p >= 21 && p <= 32:
		return true
	case p >= 61 && p <= 72:
		return true
	case p == 80:
		return true
	}
	return false
}

// validABAChecksum applies the ABA weighted checksum:
// 3(d1+d4+d7) + 7(d2+d5+d8) + (d3+d6+d9) must be divisible by 10.
func validABAChecksum(s string) bool {
	if len(s) != 9 {
		return false
	}
	d := func(i int) int { return int(s[i] - '0') }
	sum := 3*(d(0)+d(3)+d(6)) + 7*(d(1)+d(4)+d(7)) + (d(2) + d(5) + d(8))
	return sum%10 == 0
}

// isRoutingNumber reports whether a 9-digit group is a plausible ABA routing
// number (prefix range and checksum both pass). Used both to classify
// routing numbers and to exclude them from bank account candidates.
func isRoutingNumber(s string) bool {
	return len(s) == 9 && validABAPrefix(s) && validABAChecksum(s)
}
