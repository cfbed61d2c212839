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
	"fmt"
	"regexp"
	"strings"
)

// authMarkerFormat is the inert stand-in for a shielded auth-flag value.
// The marker alphabet deliberately contains nothing the detector fires on.
const authMarkerFormat = "__MOLTGUARD_AUTH_%d__"

// authShield masks the values of configured auth-lookup flags before
// detection and swaps them back afterwards. The shield covers the
// --flag=value, --flag value, and single- or double-quoted value forms.
type authShield struct {
	patterns []*regexp.Regexp
}

// newAuthShield compiles one pattern per configured flag.
func newAuthShield(flags []string) *authShield {
	patterns := make([]*regexp.Regexp, 0, len(flags))
	for _, flag := range flags {
		re := regexp.MustCompile(
			regexp.QuoteMeta(flag) + `(=|\s+)(?:"([^"]*)"|'([^']*)'|([^\s"']+))`,
		)
		patterns = append(patterns, re)
	}
	return &authShield{patterns: patterns}
}

// Shield replaces every auth-flag value in command with a numbered marker
// and returns the masked command plus the marker-to-original map. Quoting
// is preserved around the marker so the shell still parses the command.
func (a *authShield) Shield(command string) (string, map[string]string) {
	markers := make(map[string]string)
	k := 0
	for _, re := range a.patterns {
		command = re.ReplaceAllStringFunc(command, func(match string) string {
			sub := re.FindStringSubmatch(match)
			sep := sub[1]
			flagEnd := strings.Index(match, sep)
			marker := fmt.Sprintf(authMarkerFormat, k)
			k++
			switch {
			case sub[2] != "" || strings.Contains(match[flagEnd:], `"`):
				markers[marker] = sub[2]
				return match[:flagEnd] + sep + `"` + marker + `"`
			case sub[3] != "" || strings.Contains(match[flagEnd:], `'`):
				markers[marker] = sub[3]
				return match[:flagEnd] + sep + `'` + marker + `'`
			default:
				markers[marker] = sub[4]
				return match[:flagEnd] + sep + marker
			}
		})
	}
	return command, markers
}

// Unshield swaps every marker back for its original value, literally.
func Unshield(command string, markers map[string]string) string {
	for marker, original := range markers {
		command = strings.ReplaceAll(command, marker, original)
	}
	return command
}
