// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
)

const anthropicAPIVersion = "2023-06-01"

// anthropicAdapter speaks the Anthropic Messages protocol.
type anthropicAdapter struct{}

func (a *anthropicAdapter) Name() string { return config.BackendAnthropic }

// PrepareOutbound prefixes the top-level system prompt with the
// anti-hallucination instruction. The system field may be a plain string
// or an array of content blocks; both forms are preserved.
func (a *anthropicAdapter) PrepareOutbound(body map[string]any, needsRestoration bool) {
	if !needsRestoration {
		return
	}
	switch sys := body["system"].(type) {
	case string:
		body["system"] = AntiHallucinationPrompt + "\n\n" + sys
	case []any:
		block := map[string]any{"type": "text", "text": AntiHallucinationPrompt}
		body["system"] = append([]any{block}, sys...)
	default:
		body["system"] = AntiHallucinationPrompt
	}
}

func (a *anthropicAdapter) ApplyAuth(req *http.Request, backend *config.Backend) error {
	key, err := backend.OpenKey()
	if err != nil {
		return err
	}
	defer key.Destroy()
	req.Header.Set("x-api-key", key.String())
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	return nil
}

// WriteStreamResponse re-encodes a buffered Messages response as the
// documented event sequence:
//
//	message_start -> (content_block_start, content_block_delta,
//	content_block_stop)* -> message_delta -> message_stop
//
// Every top-level field of the buffered response rides along on
// message_start so nothing the upstream returned is lost.
func (a *anthropicAdapter) WriteStreamResponse(w http.ResponseWriter, restored map[string]any) error {
	flusher, _ := w.(http.Flusher)
	emit := func(eventType string, payload map[string]any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", eventType, err)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
			return fmt.Errorf("write %s event: %w", eventType, err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	blocks, _ := restored["content"].([]any)

	startMessage := cloneMap(restored)
	startMessage["content"] = []any{}
	// stop_reason arrives on message_delta in a real stream.
	stopReason := startMessage["stop_reason"]
	stopSequence := startMessage["stop_sequence"]
	startMessage["stop_reason"] = nil
	startMessage["stop_sequence"] = nil
	if err := emit("message_start", map[string]any{
		"type":    "message_start",
		"message": startMessage,
	}); err != nil {
		return err
	}

	for i, raw := range blocks {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if err := a.emitContentBlock(emit, i, block); err != nil {
			return err
		}
	}

	delta := map[string]any{
		"stop_reason":   stopReason,
		"stop_sequence": stopSequence,
	}
	messageDelta := map[string]any{
		"type":  "message_delta",
		"delta": delta,
	}
	if usage, ok := restored["usage"].(map[string]any); ok {
		messageDelta["usage"] = map[string]any{"output_tokens": usage["output_tokens"]}
	}
	if err := emit("message_delta", messageDelta); err != nil {
		return err
	}
	return emit("message_stop", map[string]any{"type": "message_stop"})
}

// emitContentBlock writes the start/delta/stop triple for one block.
// Text blocks stream as a single text_delta; tool_use blocks stream their
// full input as one input_json_delta; anything else passes its body
// through on content_block_start untouched.
func (a *anthropicAdapter) emitContentBlock(emit func(string, map[string]any) error, index int, block map[string]any) error {
	blockType, _ := block["type"].(string)

	start := cloneMap(block)
	var deltas []map[string]any
	switch blockType {
	case "text":
		text, _ := block["text"].(string)
		start["text"] = ""
		deltas = append(deltas, map[string]any{"type": "text_delta", "text": text})
	case "tool_use":
		inputJSON, err := json.Marshal(block["input"])
		if err != nil {
			return fmt.Errorf("marshal tool_use input: %w", err)
		}
		start["input"] = map[string]any{}
		deltas = append(deltas, map[string]any{"type": "input_json_delta", "partial_json": string(inputJSON)})
	case "thinking":
		thinking, _ := block["thinking"].(string)
		start["thinking"] = ""
		deltas = append(deltas, map[string]any{"type": "thinking_delta", "thinking": thinking})
	}

	if err := emit("content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         index,
		"content_block": start,
	}); err != nil {
		return err
	}
	for _, d := range deltas {
		if err := emit("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": index,
			"delta": d,
		}); err != nil {
			return err
		}
	}
	return emit("content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": index,
	})
}
