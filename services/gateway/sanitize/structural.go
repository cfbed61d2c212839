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

// structuralKeys names the JSON fields whose values carry LLM-protocol
// metadata and are never sent to the detector, regardless of content.
// Rewriting a tool_call_id or model name breaks the wire contract even
// when the value happens to look like PII.
var structuralKeys = map[string]bool{
	"tool_call_id":       true,
	"tool_use_id":        true,
	"id":                 true,
	"model":              true,
	"role":               true,
	"type":               true,
	"finish_reason":      true,
	"name":               true,
	"object":             true,
	"created":            true,
	"index":              true,
	"system_fingerprint": true,
	"stream":             true,
	"max_tokens":         true,
	"temperature":        true,
	"top_p":              true,
	"top_k":              true,
	"stop_reason":        true,
	"stop_sequence":      true,
	"media_type":         true,
	"source_type":        true,
	"prompt_tokens":      true,
	"completion_tokens":  true,
	"total_tokens":       true,
	"input_tokens":       true,
	"output_tokens":      true,
	"refusal":            true,
}

// IsStructuralKey reports whether a JSON object key is protocol metadata.
func IsStructuralKey(key string) bool {
	return structuralKeys[key]
}
