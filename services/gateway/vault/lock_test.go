// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package vault

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirLock_SecondHolderRefused(t *testing.T) {
	dir := t.TempDir()

	first, err := acquireDirLock(dir)
	require.NoError(t, err)

	// flock is held per open file description, so a second open in the
	// same process conflicts just like a second process would.
	_, err = acquireDirLock(dir)
	require.ErrorIs(t, err, ErrVaultLocked)

	releaseDirLock(first)
	second, err := acquireDirLock(dir)
	require.NoError(t, err)
	releaseDirLock(second)
}

func TestOpen_RefusesLockedVaultDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token-vault.json")

	v, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer v.Close()

	_, err = Open(Options{Path: path})
	if !errors.Is(err, ErrVaultLocked) {
		t.Fatalf("a second vault on the same directory must refuse to start, got %v", err)
	}
}
