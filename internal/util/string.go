// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package util

// TruncateRunes truncates a string to a maximum number of runes.
// Counting runes instead of bytes keeps multi-byte UTF-8 characters
// intact. If the string is truncated, "..." is appended.
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
