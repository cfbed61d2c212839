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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

func mapping(pairs ...string) *vault.MappingTable {
	m := vault.NewMappingTable()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

func TestRestore_CanonicalPass(t *testing.T) {
	m := mapping("[person_1]", "John Smith", "[ssn_1]", "123-45-6789")
	got := RestoreString("[person_1] has SSN [ssn_1]", m)
	assert.Equal(t, "John Smith has SSN 123-45-6789", got)
}

func TestRestore_LengthSortPreventsShadowing(t *testing.T) {
	m := mapping("[person_1]", "Alpha", "[person_10]", "Bravo")
	got := RestoreString("[person_10] met [person_1]", m)
	assert.Equal(t, "Bravo met Alpha", got)
}

func TestRestore_WordBoundarySafety(t *testing.T) {
	m := mapping("[person_1]", "X")
	assert.Equal(t, "[person_10]", RestoreString("[person_10]", m),
		"a different placeholder must never be partially replaced")
}

func TestRestore_BracketStrippedPass(t *testing.T) {
	m := mapping("[person_1]", "John Smith")
	got := RestoreString("the model wrote person_1 without brackets", m)
	assert.Equal(t, "the model wrote John Smith without brackets", got)
}

func TestRestore_BracketStrippedRespectsWordBoundaries(t *testing.T) {
	m := mapping("[person_1]", "John")
	assert.Equal(t, "person_10 stays", RestoreString("person_10 stays", m))
}

func TestRestore_FabricatedPlaceholderPassesThrough(t *testing.T) {
	m := mapping("[person_1]", "John", "[person_2]", "Jane")
	got := RestoreString("[person_1] met [person_9]", m)
	assert.Equal(t, "John met [person_9]",
		got, "a fabricated placeholder is left intact, never replaced with prose")
}

func TestRestore_RecursionSkipsStructuralKeys(t *testing.T) {
	m := mapping("[ssn_1]", "123-45-6789")
	value := map[string]any{
		"id":      "[ssn_1]",
		"content": "value [ssn_1] here",
		"nested":  []any{map[string]any{"text": "[ssn_1]"}},
	}
	restored := Restore(value, m).(map[string]any)
	assert.Equal(t, "[ssn_1]", restored["id"], "structural keys are not restored")
	assert.Equal(t, "value 123-45-6789 here", restored["content"])
	nested := restored["nested"].([]any)[0].(map[string]any)
	assert.Equal(t, "123-45-6789", nested["text"])
}

func TestRestore_EmptyMappingIsIdentity(t *testing.T) {
	assert.Equal(t, "untouched [person_3]", RestoreString("untouched [person_3]", vault.NewMappingTable()))
	assert.Equal(t, "untouched", RestoreString("untouched", nil))
}

// =============================================================================
// SSE Helper
// =============================================================================

func TestRestoreSSELine_JSONPayload(t *testing.T) {
	m := mapping("[person_1]", "John")
	got := RestoreSSELine(`data: {"delta":{"content":"Hello [person_1]"}}`, m)
	assert.Equal(t, `data: {"delta":{"content":"Hello John"}}`, got)
}

func TestRestoreSSELine_DoneSentinel(t *testing.T) {
	m := mapping("[person_1]", "John")
	assert.Equal(t, "data: [DONE]", RestoreSSELine("data: [DONE]", m))
}

func TestRestoreSSELine_NonJSONFallsBackToString(t *testing.T) {
	m := mapping("[person_1]", "John")
	assert.Equal(t, "data: hello John <<", RestoreSSELine("data: hello [person_1] <<", m))
}

func TestRestoreSSELine_EventLinePassesThrough(t *testing.T) {
	m := mapping("[person_1]", "John")
	assert.Equal(t, "event: message_start", RestoreSSELine("event: message_start", m))
}
