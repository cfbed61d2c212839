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

// Category labels a kind of sensitive value. The category determines the
// placeholder prefix ([ssn_1], [person_2], ...), detection precedence, and
// how redactions are counted in audit output.
type Category string

const (
	CategorySSN            Category = "ssn"
	CategoryITIN           Category = "itin"
	CategoryEIN            Category = "ein"
	CategoryEmail          Category = "email"
	CategoryPhone          Category = "phone"
	CategoryURL            Category = "url"
	CategoryIP             Category = "ip"
	CategoryIBAN           Category = "iban"
	CategoryCreditCard     Category = "credit_card"
	CategoryBankCard       Category = "bank_card"
	CategoryCurrency       Category = "currency"
	CategoryTaxYear        Category = "tax_year"
	CategoryDOB            Category = "dob"
	CategoryDate           Category = "date"
	CategoryBankAccount    Category = "bank_account"
	CategoryRoutingNumber  Category = "routing_number"
	CategoryAddress        Category = "address"
	CategoryPartialAddress Category = "partial_address"
	CategoryPerson         Category = "person"
	CategorySecret         Category = "secret"
)

// AllCategories lists every category in a stable order. The restorer builds
// its fabricated-placeholder pattern from this list, so a new category must
// be added here to be recognized in model output.
var AllCategories = []Category{
	CategorySSN,
	CategoryITIN,
	CategoryEIN,
	CategoryEmail,
	CategoryPhone,
	CategoryURL,
	CategoryIP,
	CategoryIBAN,
	CategoryCreditCard,
	CategoryBankCard,
	CategoryCurrency,
	CategoryTaxYear,
	CategoryDOB,
	CategoryDate,
	CategoryBankAccount,
	CategoryRoutingNumber,
	CategoryAddress,
	CategoryPartialAddress,
	CategoryPerson,
	CategorySecret,
}

// IsKnownCategory reports whether s names a member of the closed category
// enumeration.
func IsKnownCategory(s string) bool {
	for _, c := range AllCategories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// Match is one detection candidate: a span of the scanned text labelled with
// a category. Matches live only for the duration of a single Detect call;
// the sanitizer reconciles overlaps and duplicates.
type Match struct {
	Start    int
	End      int
	Category Category
	Text     string
}
