// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func clearBackendEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MOLTGUARD_GATEWAY_PORT",
		"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL",
		"KIMI_API_KEY", "MOONSHOT_API_KEY", "KIMI_BASE_URL",
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "GEMINI_BASE_URL",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_FullFile(t *testing.T) {
	clearBackendEnv(t)
	path := writeConfig(t, `{
		"port": 9100,
		"backends": {
			"anthropic": {"baseUrl": "https://api.anthropic.com", "apiKey": "k1"},
			"openai": {"baseUrl": "https://api.openai.com/", "apiKey": "k2"}
		},
		"routing": {"/v1/chat": "openai"},
		"upstreamTimeoutSeconds": 30
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Len(t, cfg.Backends, 2)
	assert.Equal(t, "https://api.openai.com", cfg.Backends["openai"].BaseURL,
		"trailing slashes are trimmed")

	key, err := cfg.Backends["anthropic"].OpenKey()
	require.NoError(t, err)
	assert.Equal(t, "k1", key.String())
	key.Destroy()
}

func TestLoad_DefaultsApply(t *testing.T) {
	clearBackendEnv(t)
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	assert.Equal(t, DefaultTimeout, cfg.UpstreamTimeout)
	assert.Empty(t, cfg.Backends, "missing backends are not a startup error")
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("MOLTGUARD_GATEWAY_PORT", "9200")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	require.Contains(t, cfg.Backends, BackendAnthropic)
	assert.Equal(t, "https://api.anthropic.com", cfg.Backends[BackendAnthropic].BaseURL)
}

func TestLoad_KimiMapsToOpenAIBackend(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("KIMI_API_KEY", "kimi-key")
	t.Setenv("KIMI_BASE_URL", "https://api.moonshot.ai/v1")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Contains(t, cfg.Backends, BackendOpenAI)
	assert.Equal(t, "https://api.moonshot.ai/v1", cfg.Backends[BackendOpenAI].BaseURL)
}

func TestLoad_FileBackendWinsOverEnv(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	path := writeConfig(t, `{
		"backends": {"anthropic": {"baseUrl": "http://localhost:9999", "apiKey": "file-key"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	key, err := cfg.Backends[BackendAnthropic].OpenKey()
	require.NoError(t, err)
	defer key.Destroy()
	assert.Equal(t, "file-key", key.String())
}

func TestLoad_RejectsPartialBackend(t *testing.T) {
	clearBackendEnv(t)
	path := writeConfig(t, `{"backends": {"openai": {"baseUrl": "https://api.openai.com"}}}`)
	_, err := Load(path)
	assert.Error(t, err, "a backend with baseUrl but no apiKey is invalid")
}

func TestLoad_RejectsBadPort(t *testing.T) {
	clearBackendEnv(t)
	path := writeConfig(t, `{"port": 99999}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBackendFor_RoutingOverride(t *testing.T) {
	cfg := &Config{
		Backends: map[string]*Backend{
			"openai": NewBackend("https://api.openai.com", "k"),
			"kimi":   NewBackend("https://api.moonshot.ai", "k"),
		},
		Routing: map[string]string{"/v1/chat": "kimi"},
	}

	b, name, ok := cfg.BackendFor("/v1/chat/completions", "openai")
	require.True(t, ok)
	assert.Equal(t, "kimi", name)
	assert.Equal(t, "https://api.moonshot.ai", b.BaseURL)

	_, name, ok = cfg.BackendFor("/v1/messages", "anthropic")
	assert.False(t, ok)
	assert.Equal(t, "anthropic", name)
}
