// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolguard classifies outgoing tool invocations and applies the
// sanitize/restore cycle around the ones that leave the machine, shielding
// local auth-selector flags from redaction.
package toolguard

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Policy configures which tool invocations count as outbound and which
// shell flags select local credentials. The flag set ships with the
// defaults of one hosted CLI but is deliberately configurable; the
// shielding algorithm is general.
type Policy struct {
	// AuthFlags are shell flags whose values select a LOCAL credential.
	// The value never leaves the machine, and redacting it breaks the
	// tool, so it is shielded from detection and restored afterwards.
	AuthFlags []string `yaml:"auth_flags"`

	// OutboundCommands are external-network utilities; a Bash invocation
	// whose command line mentions one is sanitized.
	OutboundCommands []string `yaml:"outbound_commands"`

	// OutboundTools are tool names that are always outbound.
	OutboundTools []string `yaml:"outbound_tools"`
}

// DefaultPolicy returns the built-in classification policy.
func DefaultPolicy() Policy {
	return Policy{
		AuthFlags:        []string{"--account", "--client"},
		OutboundCommands: []string{"curl", "gog", "wget", "http", "httpie", "ssh", "scp", "sftp", "rsync"},
		OutboundTools:    []string{"WebSearch", "WebFetch"},
	}
}

// DefaultPolicyPath returns ~/.moltguard/toolguard.yaml.
func DefaultPolicyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".moltguard", "toolguard.yaml"), nil
}

// LoadPolicy reads the policy file at path, falling back to the defaults
// when the file does not exist. Empty fields inherit the defaults so a
// partial file only overrides what it names.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return policy, nil
		}
		return policy, fmt.Errorf("failed to read the toolguard policy: %w", err)
	}

	var loaded Policy
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return policy, fmt.Errorf("failed to parse the toolguard policy: %w", err)
	}
	if len(loaded.AuthFlags) > 0 {
		policy.AuthFlags = loaded.AuthFlags
	}
	if len(loaded.OutboundCommands) > 0 {
		policy.OutboundCommands = loaded.OutboundCommands
	}
	if len(loaded.OutboundTools) > 0 {
		policy.OutboundTools = loaded.OutboundTools
	}
	return policy, nil
}
