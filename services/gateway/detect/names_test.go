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

import "testing"

func TestNames_TitleCaseBigram(t *testing.T) {
	matches := New(nil).Detect("I met with John Smith about the contract")
	if !hasMatch(matches, CategoryPerson, "John Smith") {
		t.Errorf("expected a person match for the bigram, got %v", matches)
	}
}

func TestNames_TrigramNeedsKnownFirstName(t *testing.T) {
	d := New(nil)
	matches := d.Detect("Please loop in Mary Beth Connors tomorrow")
	if !hasMatch(matches, CategoryPerson, "Mary Beth Connors") {
		t.Errorf("expected a trigram person match, got %v", matches)
	}
}

func TestNames_AllCapsNeedsKnownFirstName(t *testing.T) {
	d := New(nil)
	matches := d.Detect("employee JOHN SMITH per the W-2")
	if !hasMatch(matches, CategoryPerson, "JOHN SMITH") {
		t.Errorf("expected an all-caps person match, got %v", matches)
	}
	matches = d.Detect("the flag XYZZY QWERT is set")
	if len(findCategory(matches, CategoryPerson)) != 0 {
		t.Errorf("all-caps pairs without a known first name are not people, got %v", matches)
	}
}

func TestNames_LowercaseBigramGatedOnFirstName(t *testing.T) {
	matches := New(nil).Detect("ask john smith when he gets in")
	if !hasMatch(matches, CategoryPerson, "john smith") {
		t.Errorf("expected a lowercase person match, got %v", matches)
	}
}

func TestNames_ExclusionUnionRejects(t *testing.T) {
	d := New(nil)
	for _, phrase := range []string{
		"contact the Internal Revenue office",
		"file the Standard Deduction form",
		"visit New York this spring",
		"Wells Fargo confirmed the transfer",
	} {
		for _, p := range findCategory(d.Detect(phrase), CategoryPerson) {
			t.Errorf("%q should not yield a person, got %q", phrase, p)
		}
	}
}

func TestNames_TaxFormLabelRejected(t *testing.T) {
	matches := New(nil).Detect("attach Schedule C and Form 1040 here")
	for _, p := range findCategory(matches, CategoryPerson) {
		t.Errorf("tax form labels are not people, got %q", p)
	}
}

func TestNames_StructuralLineRejected(t *testing.T) {
	d := New(nil)
	matches := d.Detect("# John Smith\nnormal text follows")
	if hasMatch(matches, CategoryPerson, "John Smith") {
		t.Error("a name on a heading line must be rejected")
	}
	matches = d.Detect("- John Smith\n* Karen Wilson\n1. Emily Stone")
	if len(findCategory(matches, CategoryPerson)) != 0 {
		t.Errorf("names on list lines must be rejected, got %v", matches)
	}
}

func TestNames_EmailHeader(t *testing.T) {
	matches := New(nil).Detect("From: Karen Wilson <karen@example.com>\nsee below")
	if !hasMatch(matches, CategoryPerson, "Karen Wilson") {
		t.Errorf("expected the email-header name, got %v", matches)
	}
}

func TestNames_AngleEmailAdjacent(t *testing.T) {
	matches := New(nil).Detect("forwarded by Emily Stone <emily@corp.com> yesterday")
	if !hasMatch(matches, CategoryPerson, "Emily Stone") {
		t.Errorf("expected the angle-email-adjacent name, got %v", matches)
	}
}

func TestNames_SalutationWithCoordination(t *testing.T) {
	matches := New(nil).Detect("Hi John and Jane, quick update below")
	if !hasMatch(matches, CategoryPerson, "John") {
		t.Errorf("expected the salutation name, got %v", matches)
	}
	if !hasMatch(matches, CategoryPerson, "Jane") {
		t.Errorf("expected the coordinated name, got %v", matches)
	}
}

func TestNames_CustomRecognizerIsFiltered(t *testing.T) {
	// A recognizer emitting a structural-line span must still be filtered
	// by the detector's shared rejection rules.
	rec := recognizerFunc(func(text string) []Match {
		return []Match{{Start: 2, End: 12, Category: CategoryPerson, Text: "John Smith"}}
	})
	matches := New(rec).Detect("# John Smith heading")
	if hasMatch(matches, CategoryPerson, "John Smith") {
		t.Error("recognizer output on a structural line must be rejected")
	}
}

type recognizerFunc func(string) []Match

func (f recognizerFunc) Recognize(text string) []Match { return f(text) }
