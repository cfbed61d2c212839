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
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
	"github.com/thomasdehartcpa/moltguard/services/gateway/observability"
	"github.com/thomasdehartcpa/moltguard/services/gateway/sanitize"
	"github.com/thomasdehartcpa/moltguard/services/gateway/toolguard"
	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

// Server wires the proxy pipeline: configuration, vault, sanitizer, and
// the protocol adapters. Create with NewServer, mount with Routes.
type Server struct {
	cfg            *config.Config
	cfgMu          sync.RWMutex
	vault          *vault.Vault
	sanitizer      *sanitize.Sanitizer
	guard          *toolguard.Guard
	metrics        *observability.GatewayMetrics
	httpClient     *http.Client
	gatewaySession string

	anthropic adapter
	openai    adapter
	gemini    adapter

	limiters  map[string]*rate.Limiter
	limiterMu sync.Mutex
}

// NewServer builds a Server around an open vault. The shared gateway
// session is created once here; requests without a valid session header
// scope their mappings to it.
func NewServer(cfg *config.Config, v *vault.Vault, s *sanitize.Sanitizer, g *toolguard.Guard, m *observability.GatewayMetrics) *Server {
	return &Server{
		cfg:            cfg,
		vault:          v,
		sanitizer:      s,
		guard:          g,
		metrics:        m,
		httpClient:     &http.Client{},
		gatewaySession: v.CreateSession(),
		anthropic:      &anthropicAdapter{},
		openai:         &openAIAdapter{},
		gemini:         &geminiAdapter{},
		limiters:       make(map[string]*rate.Limiter),
	}
}

// GatewaySession returns the shared session ID, so shutdown can destroy it.
func (s *Server) GatewaySession() string {
	return s.gatewaySession
}

// config returns the active configuration snapshot.
func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Reload swaps the active configuration. Routing and backend changes take
// effect on the next request; the port cannot change at runtime.
func (s *Server) Reload(cfg *config.Config) {
	s.cfgMu.Lock()
	cfg.Port = s.cfg.Port
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// Routes mounts the proxy surface on a fresh gin engine.
func (s *Server) Routes(tracing bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if tracing {
		router.Use(otelgin.Middleware("moltguard-gateway"))
	}
	if s.cfg.RateLimitRPS > 0 {
		router.Use(s.rateLimit())
	}
	router.HandleMethodNotAllowed = true

	router.POST("/v1/messages", func(c *gin.Context) { s.handle(c, s.anthropic) })
	router.POST("/v1/chat/completions", func(c *gin.Context) { s.handle(c, s.openai) })
	router.POST("/chat/completions", func(c *gin.Context) { s.handle(c, s.openai) })
	router.POST("/v1/models/:modelAction", func(c *gin.Context) {
		// Gemini packs the action into the final path segment:
		// /v1/models/gemini-pro:generateContent
		action := c.Param("modelAction")
		if !strings.HasSuffix(action, ":generateContent") {
			writeError(c, http.StatusNotFound, "unknown path")
			return
		}
		s.handle(c, s.gemini)
	})

	// Local-only surface for the host plugin: sanitize outbound tool
	// calls, restore their results.
	router.POST("/v1/toolguard/call", s.handleToolCall)
	router.POST("/v1/toolguard/result", s.handleToolResult)

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.DefaultGatherer, promhttp.HandlerOpts{})))

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "unknown path")
	})
	router.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, "method not allowed on this path")
	})
	return router
}

// handleHealth reports gateway liveness plus coarse vault stats.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"vault_entries": s.vault.Len(),
		"sessions":      len(s.vault.Sessions()),
	})
}

// rateLimit applies a per-client token bucket keyed on client IP.
func (s *Server) rateLimit() gin.HandlerFunc {
	rps := s.cfg.RateLimitRPS
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return func(c *gin.Context) {
		s.limiterMu.Lock()
		limiter, ok := s.limiters[c.ClientIP()]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
			s.limiters[c.ClientIP()] = limiter
		}
		s.limiterMu.Unlock()

		if !limiter.Allow() {
			s.metrics.RateLimitedTotal.Inc()
			writeError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
