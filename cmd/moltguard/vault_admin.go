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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thomasdehartcpa/moltguard/services/gateway/vault"
)

// runVaultPurge removes expired entries from the vault file. Refuses to
// run while a gateway holds the vault lock; offline administration only.
func runVaultPurge(cmd *cobra.Command, args []string) error {
	v, err := vault.Open(vault.Options{})
	if err != nil {
		if errors.Is(err, vault.ErrVaultLocked) {
			return fmt.Errorf("a gateway is running; stop it before administering the vault")
		}
		return err
	}
	defer v.Close()

	purged := v.PurgeExpired()
	fmt.Printf("purged %d expired entries, %d remain\n", purged, v.Len())
	return nil
}

// runVaultSessions lists sessions with live entries.
func runVaultSessions(cmd *cobra.Command, args []string) error {
	v, err := vault.Open(vault.Options{})
	if err != nil {
		if errors.Is(err, vault.ErrVaultLocked) {
			return fmt.Errorf("a gateway is running; stop it before administering the vault")
		}
		return err
	}
	defer v.Close()

	sessions := v.Sessions()
	if len(sessions) == 0 {
		fmt.Println("no sessions with live entries")
		return nil
	}
	for _, id := range sessions {
		state := v.SessionState(id)
		fmt.Printf("%s  %d entries\n", id, state.Mapping().Len())
	}
	return nil
}
