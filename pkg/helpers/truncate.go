package helpers

import "unicode/utf8"

// TruncateBytes returns the longest prefix of s that fits in max bytes
// without splitting a UTF-8 sequence.
func TruncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	// step back to the first byte of the rune straddling the boundary
	for cut > 0 && cut > max-utf8.UTFMax && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if !utf8.RuneStart(s[cut]) {
		// not UTF-8 around the boundary, cut where asked
		cut = max
	}
	return s[:cut]
}

// TruncateRunes returns at most max runes of s.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Preview shortens s for log lines.
func Preview(s string, max int) string {
	t := TruncateRunes(s, max)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
