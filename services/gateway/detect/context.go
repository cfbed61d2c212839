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
	"regexp"
	"strconv"
)

// Context windows in bytes around a keyword hit. Numeric groups inside the
// window are classified by the keyword's layer.
const (
	bankContextWindow      = 120
	financialContextWindow = 200
	taxYearContextWindow   = 60
	dobContextWindow       = 60
	amountContextWindow    = 200
)

var (
	bankKeywordRe = regexp.MustCompile(`(?i)\b(?:bank account|direct deposit|account|routing|ABA|checking|savings|acct)\b`)

	financialKeywordRe = regexp.MustCompile(`(?i)\b(?:deposit|refund|1040|8888|W-2|1099|payment|transfer|wire|ACH|EFT|tax return|withholding|payroll)\b`)

	taxYearKeywordRe = regexp.MustCompile(`(?i)\b(?:tax year|TY|filing|return|W-2|1040|1099|Schedule|Form|fiscal year|FY)\b`)

	dobKeywordRe = regexp.MustCompile(`(?i)\b(?:DOB|date of birth|birthdate|birth date|birthday|born)\b`)

	amountKeywordRe = regexp.MustCompile(`(?i)\b(?:wages|income|salary|payment|refund|balance|amount|total|gross|net|` +
		`compensation|earned|adjusted|taxable|liability|deduction|withholding|dividend|distribution|contribution|` +
		`proceeds|revenue|cost|expense|fee|rent|royalty|alimony|stipend|bonus|commission|pension|annuity|benefit)\b`)

	nineDigitRe      = regexp.MustCompile(`\b\d{9}\b`)
	accountDigitRe   = regexp.MustCompile(`\b\d{8,17}\b`)
	shortAccountRe   = regexp.MustCompile(`\b\d{8,12}\b`)
	yearRe           = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	slashDateRe      = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`)
	isoDateRe        = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	groupedAmountRe  = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?\b`)
	plainAmountRe    = regexp.MustCompile(`\b\d{5,}\b`)
	dateSepDigitsRe  = regexp.MustCompile(`\d+`)
)

// keywordWindows returns the merged set of [lo, hi) byte ranges covered by
// keyword hits plus the given radius. Ranges are clamped to the text.
func keywordWindows(text string, re *regexp.Regexp, radius int) [][2]int {
	hits := re.FindAllStringIndex(text, -1)
	if len(hits) == 0 {
		return nil
	}
	windows := make([][2]int, 0, len(hits))
	for _, h := range hits {
		lo := h[0] - radius
		hi := h[1] + radius
		if lo < 0 {
			lo = 0
		}
		if hi > len(text) {
			hi = len(text)
		}
		if n := len(windows); n > 0 && lo <= windows[n-1][1] {
			if hi > windows[n-1][1] {
				windows[n-1][1] = hi
			}
			continue
		}
		windows = append(windows, [2]int{lo, hi})
	}
	return windows
}

// inWindows reports whether span [start, end) intersects any window.
func inWindows(windows [][2]int, start, end int) bool {
	for _, w := range windows {
		if start < w[1] && end > w[0] {
			return true
		}
	}
	return false
}

// detectBankNumbers implements the priority-1 bank-context layer. Within
// the bank keyword window, 9-digit groups that pass ABA validation become
// routing numbers; 8-17 digit groups become bank accounts. A 9-digit group
// that validates as a routing number is never also a bank account.
func detectBankNumbers(text string, out []Match) []Match {
	windows := keywordWindows(text, bankKeywordRe, bankContextWindow)
	if windows == nil {
		return out
	}
	for _, loc := range nineDigitRe.FindAllStringIndex(text, -1) {
		if !inWindows(windows, loc[0], loc[1]) {
			continue
		}
		s := text[loc[0]:loc[1]]
		if isRoutingNumber(s) {
			out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryRoutingNumber, Text: s})
		}
	}
	for _, loc := range accountDigitRe.FindAllStringIndex(text, -1) {
		if !inWindows(windows, loc[0], loc[1]) {
			continue
		}
		s := text[loc[0]:loc[1]]
		if isRoutingNumber(s) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryBankAccount, Text: s})
	}
	return out
}

// detectFinancialAccounts implements the layer-2 financial-context account
// scan: 8-12 digit groups near tax/payment keywords, skipping year-shaped
// values and valid routing numbers.
func detectFinancialAccounts(text string, out []Match) []Match {
	windows := keywordWindows(text, financialKeywordRe, financialContextWindow)
	if windows == nil {
		return out
	}
	for _, loc := range shortAccountRe.FindAllStringIndex(text, -1) {
		if !inWindows(windows, loc[0], loc[1]) {
			continue
		}
		s := text[loc[0]:loc[1]]
		if isYearShaped(s) || isRoutingNumber(s) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryBankAccount, Text: s})
	}
	return out
}

// detectTaxYears labels 4-digit years 1900-2099 near a tax keyword.
func detectTaxYears(text string, out []Match) []Match {
	windows := keywordWindows(text, taxYearKeywordRe, taxYearContextWindow)
	if windows == nil {
		return out
	}
	for _, loc := range yearRe.FindAllStringIndex(text, -1) {
		if !inWindows(windows, loc[0], loc[1]) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryTaxYear, Text: text[loc[0]:loc[1]]})
	}
	return out
}

// detectDates finds MM/DD/YYYY, MM-DD-YYYY, and ISO YYYY-MM-DD dates,
// promoting matches near a DOB keyword to the dob category. Candidates that
// look like path or filename fragments (preceded by a slash or backslash,
// or followed by a dot) are skipped.
func detectDates(text string, out []Match) []Match {
	dobWindows := keywordWindows(text, dobKeywordRe, dobContextWindow)

	emit := func(loc []int, iso bool) []Match {
		if loc[0] > 0 {
			prev := text[loc[0]-1]
			if prev == '/' || prev == '\\' {
				return out
			}
		}
		if loc[1] < len(text) && text[loc[1]] == '.' {
			return out
		}
		s := text[loc[0]:loc[1]]
		if !validDateDigits(s, iso) {
			return out
		}
		cat := CategoryDate
		if inWindows(dobWindows, loc[0], loc[1]) {
			cat = CategoryDOB
		}
		return append(out, Match{Start: loc[0], End: loc[1], Category: cat, Text: s})
	}

	for _, loc := range slashDateRe.FindAllStringIndex(text, -1) {
		out = emit(loc, false)
	}
	for _, loc := range isoDateRe.FindAllStringIndex(text, -1) {
		// A MM-DD-YYYY hit already covers any overlapping ISO-shaped span.
		if covered(out, loc[0], loc[1]) {
			continue
		}
		out = emit(loc, true)
	}
	return out
}

// detectContextAmounts implements the layer-6 no-dollar-sign currency scan:
// comma-grouped numbers and plain 5+ digit numbers near a financial keyword,
// excluding year-shaped and SSN/EIN-shaped values.
func detectContextAmounts(text string, out []Match) []Match {
	windows := keywordWindows(text, amountKeywordRe, amountContextWindow)
	if windows == nil {
		return out
	}
	for _, loc := range groupedAmountRe.FindAllStringIndex(text, -1) {
		if !inWindows(windows, loc[0], loc[1]) {
			continue
		}
		s := text[loc[0]:loc[1]]
		if digits := digitsOnly(s); isYearShaped(digits) || len(digits) == 9 {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryCurrency, Text: s})
	}
	for _, loc := range plainAmountRe.FindAllStringIndex(text, -1) {
		if !inWindows(windows, loc[0], loc[1]) {
			continue
		}
		s := text[loc[0]:loc[1]]
		if len(s) == 9 {
			continue
		}
		if covered(out, loc[0], loc[1]) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategoryCurrency, Text: s})
	}
	return out
}

// covered reports whether [start, end) lies inside a span already matched.
func covered(matches []Match, start, end int) bool {
	for _, m := range matches {
		if start >= m.Start && end <= m.End {
			return true
		}
	}
	return false
}

// isYearShaped reports whether a digit string is a plausible 4-digit year.
func isYearShaped(s string) bool {
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1900 && n <= 2099
}

// digitsOnly strips separators from a numeric string.
func digitsOnly(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b = append(b, s[i])
		}
	}
	return string(b)
}

// validDateDigits validates month/day/year ranges for a matched date.
// For iso=true the order is YYYY-MM-DD, otherwise MM/DD/YYYY.
func validDateDigits(s string, iso bool) bool {
	parts := dateSepDigitsRe.FindAllString(s, -1)
	if len(parts) != 3 {
		return false
	}
	var m, d, y int
	if iso {
		y, _ = strconv.Atoi(parts[0])
		m, _ = strconv.Atoi(parts[1])
		d, _ = strconv.Atoi(parts[2])
	} else {
		m, _ = strconv.Atoi(parts[0])
		d, _ = strconv.Atoi(parts[1])
		y, _ = strconv.Atoi(parts[2])
	}
	return m >= 1 && m <= 12 && d >= 1 && d <= 31 && y >= 1900 && y <= 2100
}
