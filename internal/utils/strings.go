package utils

import "unicode/utf8"

// Truncate cuts s to at most max bytes without splitting a multi-byte rune.
// Signatures double as persisted JSON map keys, so a cut that leaves invalid
// UTF-8 would be rewritten on save and no longer match the recomputed key.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
