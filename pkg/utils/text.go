// Package utils provides shared helpers for logging, vector math and text display.
package utils

import "unicode/utf8"

// Truncate shortens s to at most maxRunes runes, appending "..." when it cut something.
// A non-positive maxRunes returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
