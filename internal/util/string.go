// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "github.com/mattn/go-runewidth"

// UNICODE: Rune-aware truncation preserves multi-byte characters.
// All helpers count characters, never bytes, so CJK and emoji previews
// are never cut mid-character.

// ClampEllipsis keeps the first max runes of s and appends "..." when s is
// longer than max. Strings of max runes or fewer pass through unchanged.
// This is the sidebar preview rule: the marker is appended after the clamp,
// it does not count against max.
func ClampEllipsis(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// TruncateRunes truncates a string to a maximum number of runes, reserving
// room for the "..." marker inside the budget. Use this where the result
// must never exceed maxRunes characters (fixed-width table cells).
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// FirstLine returns s up to the first newline, for single-row list cells.
func FirstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}

// RuneLen returns the number of runes (characters) in a string.
// This is safer than len() for UTF-8 strings.
func RuneLen(s string) int {
	return len([]rune(s))
}

// TruncateWidth truncates a string to a maximum display width in terminal
// cells, appending "..." when truncated. CJK runes occupy two cells, so
// rune-count truncation would overflow fixed-width UI columns.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
