// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/thomasdehartcpa/moltguard/services/gateway/detect"
)

// placeholderRe parses the canonical [category_n] token form.
var placeholderRe = regexp.MustCompile(`^\[([a-z_]+)_(\d+)\]$`)

// ParsePlaceholder splits a canonical placeholder into its category and
// counter value. Returns ok=false for anything that is not a well-formed
// token over a known category.
func ParsePlaceholder(token string) (detect.Category, int, bool) {
	m := placeholderRe.FindStringSubmatch(token)
	if m == nil || !detect.IsKnownCategory(m[1]) {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return detect.Category(m[1]), n, true
}

// FormatPlaceholder builds the canonical bracketed token.
func FormatPlaceholder(cat detect.Category, n int) string {
	return fmt.Sprintf("[%s_%d]", cat, n)
}

// MappingTable is one session's placeholder projection: an ordered,
// bidirectional map from placeholder to original value.
//
// # Description
//
// The table behaves as an ordered map with Set/Get/Contains/Delete and
// ordered iteration. When attached to a Vault every mutation is reflected
// into the vault's persisted state; a detached table (NewMappingTable) is
// plain memory, used for per-request isolation and in tests.
//
// # Thread Safety
//
// An attached table shares the vault's mutex; a detached table is NOT safe
// for concurrent use (each request owns its own).
type MappingTable struct {
	mu      *sync.Mutex // vault mutex when attached, nil when detached
	order   []string
	items   map[string]string // token -> original
	reverse map[string]string // original -> token
}

// NewMappingTable creates a detached, empty table.
func NewMappingTable() *MappingTable {
	return &MappingTable{
		items:   make(map[string]string),
		reverse: make(map[string]string),
	}
}

func (m *MappingTable) lock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// Set binds token to original, preserving insertion order for new tokens.
func (m *MappingTable) Set(token, original string) {
	defer m.lock()()
	m.set(token, original)
}

// set is the lock-free core used by vault internals.
func (m *MappingTable) set(token, original string) {
	if _, exists := m.items[token]; !exists {
		m.order = append(m.order, token)
	}
	m.items[token] = original
	m.reverse[original] = token
}

// Get returns the original value for token.
func (m *MappingTable) Get(token string) (string, bool) {
	defer m.lock()()
	v, ok := m.items[token]
	return v, ok
}

// Contains reports whether token is mapped.
func (m *MappingTable) Contains(token string) bool {
	defer m.lock()()
	_, ok := m.items[token]
	return ok
}

// TokenFor returns the existing placeholder for an original value, if any.
// This is the idempotency index: equal originals in one session always map
// to the same token.
func (m *MappingTable) TokenFor(original string) (string, bool) {
	defer m.lock()()
	t, ok := m.reverse[original]
	return t, ok
}

// Delete removes a token binding. Unknown tokens are ignored.
func (m *MappingTable) Delete(token string) {
	defer m.lock()()
	m.delete(token)
}

func (m *MappingTable) delete(token string) {
	original, ok := m.items[token]
	if !ok {
		return
	}
	delete(m.items, token)
	delete(m.reverse, original)
	for i, t := range m.order {
		if t == token {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of bindings.
func (m *MappingTable) Len() int {
	defer m.lock()()
	return len(m.items)
}

// Tokens returns all placeholders in insertion order.
func (m *MappingTable) Tokens() []string {
	defer m.lock()()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Each calls fn for every (token, original) pair in insertion order.
// fn must not mutate the table.
func (m *MappingTable) Each(fn func(token, original string)) {
	defer m.lock()()
	for _, t := range m.order {
		fn(t, m.items[t])
	}
}

// Snapshot returns a detached copy of the table. The copy does not write
// through to any vault.
func (m *MappingTable) Snapshot() *MappingTable {
	defer m.lock()()
	out := NewMappingTable()
	for _, t := range m.order {
		out.set(t, m.items[t])
	}
	return out
}

// =============================================================================
// Session State
// =============================================================================

// SessionState is the mutable per-session view handed to the sanitizer:
// the session's mapping table plus its per-category counters.
//
// A vault-backed state (from Vault.SessionState) persists allocations; a
// detached state (NewState) is request-local memory with identical
// semantics.
type SessionState struct {
	ID       string
	vault    *Vault
	table    *MappingTable
	counters map[detect.Category]int
}

// NewState creates a detached session state for per-request isolation.
func NewState() *SessionState {
	return &SessionState{
		table:    NewMappingTable(),
		counters: make(map[detect.Category]int),
	}
}

// Mapping returns the state's mapping table.
func (s *SessionState) Mapping() *MappingTable {
	return s.table
}

// Counters returns a copy of the per-category counters.
func (s *SessionState) Counters() map[detect.Category]int {
	if s.vault != nil {
		return s.vault.counters(s.ID)
	}
	out := make(map[detect.Category]int, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// Allocate returns the placeholder for original, reusing the existing one
// when the value is already mapped in this session and otherwise binding
// the next counter for the category. Counters never decrease and are never
// burned on a reused value.
func (s *SessionState) Allocate(original string, cat detect.Category) string {
	if s.vault != nil {
		return s.vault.allocate(s.ID, original, cat)
	}
	if tok, ok := s.table.reverse[original]; ok {
		return tok
	}
	s.counters[cat]++
	tok := FormatPlaceholder(cat, s.counters[cat])
	s.table.set(tok, original)
	return tok
}
