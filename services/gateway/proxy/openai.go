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
	"strings"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
)

// openAIAdapter speaks the OpenAI-compatible chat completions protocol.
// Kimi/Moonshot, DeepSeek, and local OpenAI-compatible servers route
// through the same adapter.
type openAIAdapter struct{}

func (a *openAIAdapter) Name() string { return config.BackendOpenAI }

// isReasonerModel reports whether the model rejects non-user instruction
// roles. DeepSeek reasoner and R1-family checkpoints refuse system and
// developer messages outright.
func isReasonerModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "reasoner") || strings.Contains(m, "-r1")
}

// PrepareOutbound applies the reasoner-model role consolidation and, when
// the payload carries placeholders, injects the anti-hallucination
// instruction into the protocol's instruction channel: a new leading
// system message normally, a prefix on the first user message for
// reasoner models.
func (a *openAIAdapter) PrepareOutbound(body map[string]any, needsRestoration bool) {
	model, _ := body["model"].(string)
	reasoner := isReasonerModel(model)
	if reasoner {
		mergeInstructionRoles(body)
	}
	if !needsRestoration {
		return
	}
	if reasoner {
		prefixFirstUserMessage(body, AntiHallucinationPrompt)
		return
	}
	messages, _ := body["messages"].([]any)
	system := map[string]any{"role": "system", "content": AntiHallucinationPrompt}
	body["messages"] = append([]any{system}, messages...)
}

// mergeInstructionRoles folds all system and developer messages into a
// prefix of the first user message, preserving their relative order.
func mergeInstructionRoles(body map[string]any) {
	messages, ok := body["messages"].([]any)
	if !ok {
		return
	}
	var instructions []string
	kept := make([]any, 0, len(messages))
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			kept = append(kept, raw)
			continue
		}
		role, _ := msg["role"].(string)
		if role == "system" || role == "developer" {
			if content, ok := msg["content"].(string); ok && content != "" {
				instructions = append(instructions, content)
			}
			continue
		}
		kept = append(kept, raw)
	}
	body["messages"] = kept
	if len(instructions) > 0 {
		prefixFirstUserMessage(body, strings.Join(instructions, "\n\n"))
	}
}

// prefixFirstUserMessage prepends text to the first user message with
// string content. When no user message exists one is created.
func prefixFirstUserMessage(body map[string]any, text string) {
	messages, _ := body["messages"].([]any)
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role != "user" {
			continue
		}
		if content, ok := msg["content"].(string); ok {
			msg["content"] = text + "\n\n" + content
			return
		}
	}
	user := map[string]any{"role": "user", "content": text}
	body["messages"] = append([]any{user}, messages...)
}

func (a *openAIAdapter) ApplyAuth(req *http.Request, backend *config.Backend) error {
	key, err := backend.OpenKey()
	if err != nil {
		return err
	}
	defer key.Destroy()
	req.Header.Set("Authorization", "Bearer "+key.String())
	return nil
}

// WriteStreamResponse re-encodes a buffered chat completion as a single
// chat.completion.chunk event followed by the [DONE] sentinel. All
// top-level fields (usage, system_fingerprint, ...) are preserved;
// choices[].message becomes choices[].delta, and tool calls gain the
// index field the streaming shape requires.
func (a *openAIAdapter) WriteStreamResponse(w http.ResponseWriter, restored map[string]any) error {
	chunk := cloneMap(restored)
	chunk["object"] = "chat.completion.chunk"

	if choices, ok := restored["choices"].([]any); ok {
		converted := make([]any, len(choices))
		for i, raw := range choices {
			choice, ok := raw.(map[string]any)
			if !ok {
				converted[i] = raw
				continue
			}
			converted[i] = messageToDelta(choice)
		}
		chunk["choices"] = converted
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	flusher, _ := w.(http.Flusher)
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done sentinel: %w", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// messageToDelta rewrites one choice from response shape to chunk shape.
func messageToDelta(choice map[string]any) map[string]any {
	out := cloneMap(choice)
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return out
	}
	delta := cloneMap(message)
	if toolCalls, ok := delta["tool_calls"].([]any); ok {
		indexed := make([]any, len(toolCalls))
		for i, raw := range toolCalls {
			if tc, ok := raw.(map[string]any); ok {
				withIndex := cloneMap(tc)
				withIndex["index"] = i
				indexed[i] = withIndex
				continue
			}
			indexed[i] = raw
		}
		delta["tool_calls"] = indexed
	}
	delete(out, "message")
	out["delta"] = delta
	return out
}
