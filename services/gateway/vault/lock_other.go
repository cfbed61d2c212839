// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build !unix

package vault

import (
	"log/slog"
	"os"
)

// acquireDirLock is a no-op on platforms without flock(2). Single-writer
// discipline falls back to the operator.
func acquireDirLock(dir string) (*os.File, error) {
	slog.Warn("advisory vault locking is not supported on this platform", "dir", dir)
	return nil, nil
}

func releaseDirLock(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
