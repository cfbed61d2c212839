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
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
	"github.com/thomasdehartcpa/moltguard/services/gateway/detect"
	"github.com/thomasdehartcpa/moltguard/services/gateway/observability"
	"github.com/thomasdehartcpa/moltguard/services/gateway/sanitize"
	"github.com/thomasdehartcpa/moltguard/services/gateway/toolguard"
	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// upstreamCapture records what the gateway forwarded.
type upstreamCapture struct {
	body    map[string]any
	headers http.Header
}

// newTestServer wires a gateway against a stub upstream and returns the
// router plus the capture of the last forwarded request.
func newTestServer(t *testing.T, upstream http.HandlerFunc) (*gin.Engine, *upstreamCapture, *Server) {
	t.Helper()

	capture := &upstreamCapture{}
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		capture.headers = r.Header.Clone()
		capture.body = nil
		_ = json.Unmarshal(raw, &capture.body)
		upstream(w, r)
	}))
	t.Cleanup(stub.Close)

	cfg := &config.Config{
		Port:            config.DefaultPort,
		MaxBodyBytes:    config.DefaultMaxBodyBytes,
		UpstreamTimeout: 5 * time.Second,
		Backends: map[string]*config.Backend{
			config.BackendAnthropic: config.NewBackend(stub.URL, "test-anthropic-key"),
			config.BackendOpenAI:    config.NewBackend(stub.URL, "test-openai-key"),
			config.BackendGemini:    config.NewBackend(stub.URL, "test-gemini-key"),
		},
	}

	v, err := vault.Open(vault.Options{
		Path:     filepath.Join(t.TempDir(), "token-vault.json"),
		SkipLock: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })

	sanitizer := sanitize.New(detect.New(nil))
	guard := toolguard.New(toolguard.DefaultPolicy(), sanitizer)
	metrics := observability.NewGatewayMetrics(prometheus.NewRegistry())
	server := NewServer(cfg, v, sanitizer, guard, metrics)
	return server.Routes(false), capture, server
}

func jsonUpstream(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func doPost(router *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Request-Side Sanitization
// =============================================================================

func TestProxy_SanitizesBeforeForwarding(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200,
		`{"id":"msg_1","content":[{"type":"text","text":"noted"}]}`))

	resp := doPost(router, "/v1/messages",
		`{"model":"claude-sonnet-4","messages":[{"role":"user","content":"My SSN is 123-45-6789 and I am John Smith"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	forwarded, _ := json.Marshal(capture.body)
	assert.NotContains(t, string(forwarded), "123-45-6789")
	assert.NotContains(t, string(forwarded), "John Smith")
	assert.Contains(t, string(forwarded), "[ssn_1]")
	assert.Equal(t, "test-anthropic-key", capture.headers.Get("x-api-key"))
	assert.Equal(t, anthropicAPIVersion, capture.headers.Get("anthropic-version"))
}

func TestProxy_InjectsAntiHallucinationPrompt(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200, `{"content":[]}`))

	doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"SSN 123-45-6789"}],"system":"be brief"}`, nil)
	system, _ := capture.body["system"].(string)
	assert.True(t, strings.HasPrefix(system, "IMPORTANT: Some values"),
		"the instruction must prefix the existing system prompt")
	assert.Contains(t, system, "be brief")
}

func TestProxy_NoInjectionWithoutRedactions(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200, `{"content":[]}`))

	doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"hello there"}]}`, nil)
	_, hasSystem := capture.body["system"]
	assert.False(t, hasSystem, "a clean payload gets no instruction")
}

func TestProxy_RestoresBufferedResponse(t *testing.T) {
	router, _, _ := newTestServer(t, jsonUpstream(200,
		`{"content":[{"type":"text","text":"Understood, [person_1]."}]}`))

	resp := doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"I am John Smith"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Understood, John Smith.")
	assert.NotContains(t, resp.Body.String(), "[person_1]")
}

// =============================================================================
// Streaming Downgrade (scenario: OpenAI + PII + stream)
// =============================================================================

func TestProxy_StreamingDowngrade(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200, `{
		"id": "chatcmpl-abc",
		"object": "chat.completion",
		"created": 1714000000,
		"model": "gpt-4o",
		"system_fingerprint": "fp_x",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello [person_1]"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
	}`))

	resp := doPost(router, "/v1/chat/completions", `{
		"model": "gpt-4o",
		"stream": true,
		"stream_options": {"include_usage": true},
		"messages": [{"role": "user", "content": "I am John Smith"}]
	}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	// Outbound: stream forced off, stream-only siblings removed.
	assert.Equal(t, false, capture.body["stream"])
	_, hasOptions := capture.body["stream_options"]
	assert.False(t, hasOptions, "stream_options must be stripped with stream=false")

	// Client side: exactly one chunk, then the sentinel.
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	lines := nonEmptyLines(resp.Body.String())
	require.Len(t, lines, 2)
	assert.Equal(t, "data: [DONE]", lines[1])

	// The chunk decodes with the official client types and carries the
	// restored delta.
	var chunk openai.ChatCompletionStreamResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &chunk))
	assert.Equal(t, "chat.completion.chunk", chunk.Object)
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "Hello John Smith", chunk.Choices[0].Delta.Content)
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, 14, chunk.Usage.TotalTokens)
}

func TestProxy_StreamPassthroughWithoutRedactions(t *testing.T) {
	router, capture, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	resp := doPost(router, "/v1/chat/completions",
		`{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"just say hi"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, capture.body["stream"], "clean streams stay streaming")
	assert.Contains(t, resp.Body.String(), `"content":"hi"`)
	assert.Contains(t, resp.Body.String(), "data: [DONE]")
}

// =============================================================================
// Reasoner Fixup
// =============================================================================

func TestProxy_ReasonerModelMergesSystemIntoUser(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200, `{"choices":[]}`))

	doPost(router, "/v1/chat/completions", `{
		"model": "deepseek-reasoner",
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "SSN 123-45-6789"}
		]
	}`, nil)

	messages := capture.body["messages"].([]any)
	for _, raw := range messages {
		role := raw.(map[string]any)["role"].(string)
		assert.NotEqual(t, "system", role, "reasoner payloads carry no system role")
	}
	first := messages[0].(map[string]any)
	content := first["content"].(string)
	assert.Contains(t, content, "be terse")
	assert.Contains(t, content, "IMPORTANT: Some values", "instruction rides the user message")
}

// =============================================================================
// Canary / Error Surface
// =============================================================================

func TestProxy_RelaysUpstreamErrors(t *testing.T) {
	router, _, _ := newTestServer(t, jsonUpstream(429, `{"error":{"type":"rate_limit_error"}}`))

	resp := doPost(router, "/v1/messages", `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Contains(t, resp.Body.String(), "rate_limit_error")
}

func TestProxy_MissingBackend(t *testing.T) {
	router, _, server := newTestServer(t, jsonUpstream(200, `{}`))
	server.Reload(&config.Config{
		Port:            config.DefaultPort,
		MaxBodyBytes:    config.DefaultMaxBodyBytes,
		UpstreamTimeout: time.Second,
		Backends:        map[string]*config.Backend{},
	})

	resp := doPost(router, "/v1/messages", `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "anthropic backend not configured")
}

func TestProxy_BodyTooLarge(t *testing.T) {
	router, _, server := newTestServer(t, jsonUpstream(200, `{}`))
	cfg := server.config()
	small := *cfg
	small.MaxBodyBytes = 64
	server.Reload(&small)

	resp := doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"`+strings.Repeat("x", 256)+`"}]}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestProxy_InvalidJSONBody(t *testing.T) {
	router, _, _ := newTestServer(t, jsonUpstream(200, `{}`))
	resp := doPost(router, "/v1/messages", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// =============================================================================
// Routing Surface
// =============================================================================

func TestProxy_UnknownPathAndMethod(t *testing.T) {
	router, _, _ := newTestServer(t, jsonUpstream(200, `{}`))

	resp := doPost(router, "/v1/unknown", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestProxy_GeminiRouteRequiresGenerateContent(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200, `{"candidates":[]}`))

	resp := doPost(router, "/v1/models/gemini-pro:generateContent",
		`{"contents":[{"parts":[{"text":"SSN 123-45-6789"}]}]}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test-gemini-key", capture.headers.Get("x-goog-api-key"))
	forwarded, _ := json.Marshal(capture.body)
	assert.NotContains(t, string(forwarded), "123-45-6789")
	assert.Contains(t, string(forwarded), "systemInstruction")

	resp = doPost(router, "/v1/models/gemini-pro:embedContent", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProxy_Health(t *testing.T) {
	router, _, _ := newTestServer(t, jsonUpstream(200, `{}`))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

// =============================================================================
// Sessions
// =============================================================================

func TestProxy_SessionHeaderScopesMappings(t *testing.T) {
	router, capture, _ := newTestServer(t, jsonUpstream(200, `{"content":[]}`))
	session := "a2f7c3de-4b18-4a5e-9c3f-2b1d0e9f8a7c"

	doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"I am John Smith"}]}`,
		map[string]string{SessionHeader: session})
	forwarded, _ := json.Marshal(capture.body)
	assert.Contains(t, string(forwarded), "[person_1]")

	// The same original in the same session reuses the placeholder.
	doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"John Smith again"}]}`,
		map[string]string{SessionHeader: session})
	forwarded, _ = json.Marshal(capture.body)
	assert.Contains(t, string(forwarded), "[person_1]")
	assert.NotContains(t, string(forwarded), "person_2")
}

func TestProxy_InvalidSessionHeaderFallsBack(t *testing.T) {
	router, capture, server := newTestServer(t, jsonUpstream(200, `{"content":[]}`))

	resp := doPost(router, "/v1/messages",
		`{"messages":[{"role":"user","content":"I am John Smith"}]}`,
		map[string]string{SessionHeader: "not-a-uuid"})
	require.Equal(t, http.StatusOK, resp.Code)
	forwarded, _ := json.Marshal(capture.body)
	assert.Contains(t, string(forwarded), "[person_1]", "invalid session falls back to the shared scope")

	state := server.vault.SessionState(server.GatewaySession())
	_, ok := state.Mapping().TokenFor("John Smith")
	assert.True(t, ok)
}

// =============================================================================
// Toolguard Surface
// =============================================================================

func TestProxy_ToolguardCallAndResult(t *testing.T) {
	router, _, _ := newTestServer(t, jsonUpstream(200, `{}`))
	session := "b3e8d4ef-5c29-4b6f-8d4a-3c2e1f0a9b8d"

	resp := doPost(router, "/v1/toolguard/call", `{
		"name": "Bash",
		"params": {"command": "curl https://api.example.com -d 'ssn=123-45-6789'"}
	}`, map[string]string{SessionHeader: session})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "123-45-6789")
	assert.Contains(t, resp.Body.String(), `"sanitized":true`)

	resp = doPost(router, "/v1/toolguard/result",
		`{"result":"the ssn was [ssn_1]"}`,
		map[string]string{SessionHeader: session})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "123-45-6789", "results restore through the session mapping")
}

// =============================================================================
// Helpers
// =============================================================================

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
