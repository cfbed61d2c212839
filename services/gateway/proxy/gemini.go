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
	"fmt"
	"net/http"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
)

// geminiAdapter speaks the Gemini generateContent protocol. The schema has
// no stream flag on this route, so the streaming downgrade never applies;
// instruction injection mirrors the OpenAI behavior through the
// systemInstruction channel.
type geminiAdapter struct{}

func (g *geminiAdapter) Name() string { return config.BackendGemini }

// PrepareOutbound prepends the anti-hallucination instruction to
// systemInstruction.parts[0].text, creating the field when absent.
func (g *geminiAdapter) PrepareOutbound(body map[string]any, needsRestoration bool) {
	if !needsRestoration {
		return
	}
	instruction, _ := body["systemInstruction"].(map[string]any)
	if instruction == nil {
		body["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": AntiHallucinationPrompt}},
		}
		return
	}
	parts, _ := instruction["parts"].([]any)
	if len(parts) > 0 {
		if first, ok := parts[0].(map[string]any); ok {
			if text, ok := first["text"].(string); ok {
				first["text"] = AntiHallucinationPrompt + "\n\n" + text
				return
			}
		}
	}
	instruction["parts"] = append([]any{map[string]any{"text": AntiHallucinationPrompt}}, parts...)
}

func (g *geminiAdapter) ApplyAuth(req *http.Request, backend *config.Backend) error {
	key, err := backend.OpenKey()
	if err != nil {
		return err
	}
	defer key.Destroy()
	req.Header.Set("x-goog-api-key", key.String())
	return nil
}

// WriteStreamResponse is unreachable for generateContent; the route never
// sets a stream flag, so needs-restoration downgrades cannot occur.
func (g *geminiAdapter) WriteStreamResponse(http.ResponseWriter, map[string]any) error {
	return fmt.Errorf("the gemini adapter does not re-encode streams")
}
