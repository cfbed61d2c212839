// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the gateway configuration.
//
// # Description
//
// Configuration comes from a JSON file (argv[1] or ~/.moltguard/gateway.json)
// with environment variables as a fallback source for the port and per-
// backend credentials. Upstream API keys never sit in plain process memory
// longer than parsing requires: they are sealed into memguard enclaves and
// only opened at request-forward time.
//
// Backends missing both file and environment configuration are NOT a
// startup error; their routes fail with 500 when hit.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
)

// Backend names used in the backends map and routing table.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendGemini    = "gemini"
)

// fileConfig is the on-disk JSON shape.
type fileConfig struct {
	Port         int                        `json:"port"`
	Backends     map[string]fileBackend     `json:"backends"`
	Routing      map[string]string          `json:"routing"`
	MaxBodyBytes int64                      `json:"maxBodyBytes"`
	TimeoutSecs  int                        `json:"upstreamTimeoutSeconds"`
	RateLimitRPS float64                    `json:"rateLimitRPS"`
	Ephemeral    bool                       `json:"ephemeralSessions"`
}

type fileBackend struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey"`
}

// Backend is one configured upstream. The API key lives in a memguard
// enclave; call OpenKey around each use and destroy the returned buffer.
type Backend struct {
	BaseURL string `validate:"required,url"`
	key     *memguard.Enclave
}

// OpenKey decrypts the API key into a locked buffer. The caller must
// Destroy the buffer as soon as the header is set.
func (b *Backend) OpenKey() (*memguard.LockedBuffer, error) {
	if b.key == nil {
		return nil, fmt.Errorf("backend has no API key")
	}
	return b.key.Open()
}

// Config is the validated runtime configuration.
type Config struct {
	Port            int `validate:"min=1,max=65535"`
	Backends        map[string]*Backend
	Routing         map[string]string
	MaxBodyBytes    int64
	UpstreamTimeout time.Duration
	RateLimitRPS    float64

	// EphemeralSessions destroys a request's session after the response
	// is written, instead of accumulating mappings in the shared gateway
	// session. Applies only to requests without a session header.
	EphemeralSessions bool
}

// Defaults applied to zero fields.
const (
	DefaultPort         = 8900
	DefaultMaxBodyBytes = 16 << 20
	DefaultTimeout      = 60 * time.Second
)

// DefaultPath returns ~/.moltguard/gateway.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".moltguard", "gateway.json"), nil
}

// Load reads the config file at path (or the default location when path is
// empty), applies environment fallbacks, and validates the result. A
// missing file is fine as long as the environment supplies what is needed.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse the gateway config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("failed to read the gateway config %s: %w", path, err)
	}

	cfg := &Config{
		Port:            fc.Port,
		Backends:        make(map[string]*Backend),
		Routing:         fc.Routing,
		MaxBodyBytes:    fc.MaxBodyBytes,
		RateLimitRPS:    fc.RateLimitRPS,
		UpstreamTimeout: time.Duration(fc.TimeoutSecs) * time.Second,

		EphemeralSessions: fc.Ephemeral,
	}

	for name, fb := range fc.Backends {
		if fb.BaseURL == "" || fb.APIKey == "" {
			return nil, fmt.Errorf("backend %q must set both baseUrl and apiKey", name)
		}
		cfg.Backends[name] = NewBackend(fb.BaseURL, fb.APIKey)
	}

	applyEnvFallbacks(cfg)

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = DefaultTimeout
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}
	for name, b := range cfg.Backends {
		if err := validator.New().Struct(b); err != nil {
			return nil, fmt.Errorf("invalid %s backend config: %w", name, err)
		}
	}
	return cfg, nil
}

// NewBackend seals an API key into a memguard enclave. The plaintext key
// should not be retained by the caller.
func NewBackend(baseURL, apiKey string) *Backend {
	return &Backend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		key:     memguard.NewEnclave([]byte(apiKey)),
	}
}

// applyEnvFallbacks fills gaps from the environment. A backend already
// present from the file always wins.
func applyEnvFallbacks(cfg *Config) {
	if cfg.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("MOLTGUARD_GATEWAY_PORT")); err == nil {
			cfg.Port = p
		}
	}

	type envBackend struct {
		name     string
		keys     []string
		baseURLs []string
		fallback string
	}
	sources := []envBackend{
		{
			name:     BackendAnthropic,
			keys:     []string{"ANTHROPIC_API_KEY"},
			baseURLs: []string{"ANTHROPIC_BASE_URL"},
			fallback: "https://api.anthropic.com",
		},
		{
			name:     BackendOpenAI,
			keys:     []string{"OPENAI_API_KEY"},
			baseURLs: []string{"OPENAI_BASE_URL"},
			fallback: "https://api.openai.com",
		},
		// Kimi/Moonshot serves the OpenAI-compatible surface.
		{
			name:     BackendOpenAI,
			keys:     []string{"KIMI_API_KEY", "MOONSHOT_API_KEY"},
			baseURLs: []string{"KIMI_BASE_URL"},
			fallback: "https://api.moonshot.ai/v1",
		},
		{
			name:     BackendGemini,
			keys:     []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
			baseURLs: []string{"GEMINI_BASE_URL"},
			fallback: "https://generativelanguage.googleapis.com",
		},
	}

	for _, src := range sources {
		if _, exists := cfg.Backends[src.name]; exists {
			continue
		}
		apiKey := firstEnv(src.keys)
		if apiKey == "" {
			continue
		}
		baseURL := firstEnv(src.baseURLs)
		if baseURL == "" {
			baseURL = src.fallback
		}
		cfg.Backends[src.name] = NewBackend(baseURL, apiKey)
	}
}

func firstEnv(names []string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// BackendFor resolves the backend for a request path: an explicit routing
// prefix override first, then the adapter's default backend name.
func (c *Config) BackendFor(path, defaultName string) (*Backend, string, bool) {
	name := defaultName
	for prefix, target := range c.Routing {
		if strings.HasPrefix(path, prefix) {
			name = target
			break
		}
	}
	b, ok := c.Backends[name]
	return b, name, ok
}
