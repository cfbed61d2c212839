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
	"math"
	"regexp"
	"strings"
)

// minEntropyBits is the Shannon-entropy floor (bits per character) above
// which a long URL-safe token is treated as a secret even without a known
// prefix.
const minEntropyBits = 4.0

var (
	// Known secret prefixes: provider API keys, access tokens, webhook
	// signing secrets. Followed by 8+ chars of URL-safe alphabet.
	prefixedSecretRe = regexp.MustCompile(`\b(?:sk-|sk_|pk_|ghp_|AKIA|xox|SG\.|hf_|api-|token-|secret-)[A-Za-z0-9_\-.]{8,}`)

	bearerSecretRe = regexp.MustCompile(`\bBearer\s+[A-Za-z0-9_\-.=]{8,}`)

	// Any word-bounded 20+ char URL-safe token; gated on entropy below.
	longTokenRe = regexp.MustCompile(`\b[A-Za-z0-9_\-]{20,}\b`)
)

// llmIdentifierPrefixes lists identifier prefixes emitted by LLM APIs.
// These are protocol plumbing (tool-call ids, message ids), never secrets;
// redacting them breaks the conversation contract, so all three secret
// scans reject candidates carrying one.
var llmIdentifierPrefixes = []string{
	"call_", "toolu_", "chatcmpl-", "msg_", "resp_", "run_", "step_",
	"asst_", "file-", "org-", "snip_", "tool_", "block_", "embd_",
	"modr_", "ft-", "batch_",
}

func hasLLMIdentifierPrefix(s string) bool {
	for _, p := range llmIdentifierPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// shannonEntropy returns the per-character Shannon entropy of s in bits.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	entropy := 0.0
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// detectSecrets implements the layer-8 secret scan: prefixed tokens,
// bearer tokens, and high-entropy long tokens.
func detectSecrets(text string, out []Match) []Match {
	for _, loc := range prefixedSecretRe.FindAllStringIndex(text, -1) {
		s := text[loc[0]:loc[1]]
		if hasLLMIdentifierPrefix(s) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategorySecret, Text: s})
	}
	for _, loc := range bearerSecretRe.FindAllStringIndex(text, -1) {
		s := text[loc[0]:loc[1]]
		if hasLLMIdentifierPrefix(strings.TrimSpace(strings.TrimPrefix(s, "Bearer"))) {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategorySecret, Text: s})
	}
	for _, loc := range longTokenRe.FindAllStringIndex(text, -1) {
		s := text[loc[0]:loc[1]]
		if hasLLMIdentifierPrefix(s) {
			continue
		}
		if covered(out, loc[0], loc[1]) {
			continue
		}
		if shannonEntropy(s) < minEntropyBits {
			continue
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Category: CategorySecret, Text: s})
	}
	return out
}
