// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"
)

// load hydrates the in-memory projection from the vault file. Expired
// entries are skipped; counters are rebuilt as the maximum counter value
// observed per session and category. A missing file is a fresh start; a
// corrupt file is logged once and treated as empty.
func (v *Vault) load() {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read the vault file, starting empty", "path", v.path, "error", err)
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("vault file is corrupt, starting empty", "path", v.path, "error", err)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	skipped := 0
	for i := range entries {
		e := entries[i]
		if !e.ExpiresAt.After(now) {
			skipped++
			continue
		}
		sd := v.sessionLocked(e.SessionID)
		if _, dup := sd.entries[e.Token]; dup {
			continue
		}
		stored := e
		sd.entries[e.Token] = &stored
		sd.table.set(e.Token, e.OriginalValue)
		if cat, n, ok := ParsePlaceholder(e.Token); ok && n > sd.counters[cat] {
			sd.counters[cat] = n
		}
		v.total++
	}
	slog.Info("vault loaded",
		"path", v.path,
		"entries", v.total,
		"sessions", len(v.sessions),
		"expired_skipped", skipped,
	)
}

// markDirtyLocked schedules a debounced flush. Caller holds v.mu.
func (v *Vault) markDirtyLocked() {
	v.dirty = true
	if v.closed || v.flushTimer != nil {
		return
	}
	v.flushDone.Add(1)
	v.flushTimer = time.AfterFunc(v.flushDebounce, func() {
		defer v.flushDone.Done()
		v.mu.Lock()
		v.flushTimer = nil
		v.mu.Unlock()
		if err := v.flushNow(); err != nil {
			slog.Error("vault flush failed, will retry on next mutation", "error", err)
			v.mu.Lock()
			v.markDirtyLocked()
			v.mu.Unlock()
		}
	})
}

// flushNow serializes all live entries and writes them atomically: tmp
// sibling, fsync-free rename, owner-only permissions.
func (v *Vault) flushNow() error {
	v.mu.Lock()
	if !v.dirty {
		v.mu.Unlock()
		return nil
	}
	v.dirty = false
	entries := v.snapshotLocked()
	v.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal the vault: %w", err)
	}

	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write the vault tmp file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("failed to replace the vault file: %w", err)
	}
	return nil
}

// snapshotLocked copies all live entries in a stable order. Caller holds
// v.mu.
func (v *Vault) snapshotLocked() []Entry {
	out := make([]Entry, 0, v.total)
	for _, sd := range v.sessions {
		for _, e := range sd.entries {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
