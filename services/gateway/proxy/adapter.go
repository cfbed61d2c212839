// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package proxy implements the HTTP reverse-proxy pipeline: parse,
// sanitize, canary-check, forward, restore. Per-protocol adapters handle
// the Anthropic, OpenAI-compatible, and Gemini wire formats, including the
// streaming-to-buffered downgrade and SSE re-encoding.
package proxy

import (
	"net/http"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
	"github.com/thomasdehartcpa/moltguard/services/gateway/sanitize"
)

// AntiHallucinationPrompt is the fixed instruction prepended to the
// model's instruction channel whenever the outbound payload contains
// placeholders. It dissuades the model from inventing placeholders or
// redacting un-bracketed values on its own authority.
const AntiHallucinationPrompt = "IMPORTANT: Some values in this conversation have been replaced with " +
	"bracketed placeholders like [person_1] or [ssn_1]. You MUST use these placeholders exactly as they " +
	"appear — never invent new ones, never change their numbers, and never create placeholders for values " +
	"that are not already bracketed. ALL UN-BRACKETED VALUES ARE SAFE TO USE EXACTLY AS-IS. Treat each " +
	"placeholder as an opaque literal that will be expanded after you respond, and do not mention, explain, " +
	"or draw attention to the placeholders in your reply."

// adapter is the per-protocol surface the pipeline drives.
type adapter interface {
	// Name is the default backend name for this protocol.
	Name() string

	// PrepareOutbound applies protocol fixups to the sanitized body
	// before serialization: instruction injection when the payload
	// carries placeholders, plus any model-specific message reshaping.
	PrepareOutbound(body map[string]any, needsRestoration bool)

	// ApplyAuth sets the protocol's authentication headers from the
	// configured backend.
	ApplyAuth(req *http.Request, backend *config.Backend) error

	// WriteStreamResponse re-encodes a restored, buffered upstream
	// response as this protocol's SSE event stream, ending with the
	// protocol's termination marker. No upstream field may be lost.
	WriteStreamResponse(w http.ResponseWriter, restored map[string]any) error
}

// restoreBody runs the restorer over a parsed upstream response.
func restoreBody(body any, mapping sanitize.MappingView) any {
	if mapping == nil || mapping.Len() == 0 {
		return body
	}
	return sanitize.Restore(body, mapping)
}

// cloneMap shallow-copies a JSON object.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
