// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolguard

import (
	"regexp"
	"strings"

	"github.com/thomasdehartcpa/moltguard/services/gateway/sanitize"
	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

// ToolCall is a host tool invocation: a tool name plus its parameters.
type ToolCall struct {
	Name   string
	Params map[string]any
}

// Guard classifies tool invocations and sanitizes the outbound ones.
// Construct with New; safe for concurrent use.
type Guard struct {
	policy    Policy
	shield    *authShield
	commandRe *regexp.Regexp
	outbound  map[string]bool
	sanitizer *sanitize.Sanitizer
}

// New builds a Guard from a policy and the shared sanitizer.
func New(policy Policy, sanitizer *sanitize.Sanitizer) *Guard {
	parts := make([]string, len(policy.OutboundCommands))
	for i, c := range policy.OutboundCommands {
		parts[i] = regexp.QuoteMeta(c)
	}
	outbound := make(map[string]bool, len(policy.OutboundTools))
	for _, t := range policy.OutboundTools {
		outbound[normalizeToolName(t)] = true
	}
	return &Guard{
		policy:    policy,
		shield:    newAuthShield(policy.AuthFlags),
		commandRe: regexp.MustCompile(`\b(?:` + strings.Join(parts, "|") + `)\b`),
		outbound:  outbound,
		sanitizer: sanitizer,
	}
}

// normalizeToolName lowercases and strips underscores so WebSearch,
// web_search, and websearch classify identically.
func normalizeToolName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// IsOutbound reports whether the invocation sends data off the machine:
// a Bash command calling an external-network utility, or a tool from the
// always-outbound set.
func (g *Guard) IsOutbound(call ToolCall) bool {
	name := normalizeToolName(call.Name)
	if name == "bash" {
		command, _ := call.Params["command"].(string)
		return g.commandRe.MatchString(command)
	}
	return g.outbound[name]
}

// SanitizeCall sanitizes an outbound tool call through the session state.
// Auth-flag values in a Bash command are shielded before detection and
// restored afterwards, so the local credential selector survives intact.
// Non-outbound calls are returned unchanged with sanitized=false.
func (g *Guard) SanitizeCall(call ToolCall, state *vault.SessionState) (ToolCall, bool) {
	if !g.IsOutbound(call) {
		return call, false
	}

	params := call.Params
	var markers map[string]string
	if normalizeToolName(call.Name) == "bash" {
		if command, ok := params["command"].(string); ok {
			shielded, m := g.shield.Shield(command)
			markers = m
			params = cloneParams(params)
			params["command"] = shielded
		}
	}

	result := g.sanitizer.Sanitize(params, state)
	out, _ := result.Sanitized.(map[string]any)
	if len(markers) > 0 {
		if command, ok := out["command"].(string); ok {
			out["command"] = Unshield(command, markers)
		}
	}
	return ToolCall{Name: call.Name, Params: out}, true
}

// RestoreResult restores placeholders in a tool result's message content.
// Results arrive in several shapes (plain string, arrays of text or
// tool_result blocks); the generic JSON walk handles all of them.
func (g *Guard) RestoreResult(result any, mapping sanitize.MappingView) any {
	if mapping == nil || mapping.Len() == 0 {
		return result
	}
	return sanitize.Restore(result, mapping)
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
