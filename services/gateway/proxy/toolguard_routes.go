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

	"github.com/gin-gonic/gin"

	"github.com/thomasdehartcpa/moltguard/services/gateway/toolguard"
)

// toolCallRequest is the host plugin's sanitize request for one tool
// invocation.
type toolCallRequest struct {
	Name   string         `json:"name" binding:"required"`
	Params map[string]any `json:"params"`
}

// toolResultRequest carries a tool result back for restoration.
type toolResultRequest struct {
	Result any `json:"result"`
}

// handleToolCall classifies a tool invocation and sanitizes it when it is
// outbound. The session scope follows the same header rules as the proxy
// routes, so tool-call placeholders share numbering with the conversation
// they belong to.
func (s *Server) handleToolCall(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "request body must carry a tool name")
		return
	}

	sessionID, ephemeral := s.resolveSession(c)
	if ephemeral {
		defer s.vault.DestroySession(sessionID)
	}
	state := s.vault.SessionState(sessionID)

	call, sanitized := s.guard.SanitizeCall(toolguard.ToolCall{Name: req.Name, Params: req.Params}, state)
	s.metrics.VaultEntries.Set(float64(s.vault.Len()))
	c.JSON(http.StatusOK, gin.H{
		"name":      call.Name,
		"params":    call.Params,
		"sanitized": sanitized,
	})
}

// handleToolResult restores placeholders in a tool result using the
// session's mapping.
func (s *Server) handleToolResult(c *gin.Context) {
	var req toolResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	sessionID, ephemeral := s.resolveSession(c)
	if ephemeral {
		defer s.vault.DestroySession(sessionID)
	}
	state := s.vault.SessionState(sessionID)
	c.JSON(http.StatusOK, gin.H{
		"result": s.guard.RestoreResult(req.Result, state.Mapping()),
	})
}
