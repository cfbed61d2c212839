// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logJSON    bool
	logDebug   bool

	rootCmd = &cobra.Command{
		Use:   "moltguard",
		Short: "A local PII-sanitization gateway for LLM traffic",
		Long: `MoltGuard sits between an AI-assistant host and third-party LLM APIs.
Sensitive values are replaced with numbered placeholders before anything
leaves the machine; the reverse mapping stays local and restores the
originals in the response stream.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve [config]",
		Short: "Start the gateway proxy",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}

	vaultCmd = &cobra.Command{
		Use:   "vault",
		Short: "Administer the token vault",
	}

	vaultPurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries from the vault file",
		RunE:  runVaultPurge,
	}

	vaultSessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with live vault entries",
		RunE:  runVaultSessions,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to gateway.json")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "force JSON log output")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "debug", false, "enable debug logging")

	vaultCmd.AddCommand(vaultPurgeCmd, vaultSessionsCmd)
	rootCmd.AddCommand(serveCmd, vaultCmd)
}
