package quote

import "unicode/utf8"

// Format wraps quote in prefix and suffix. Nothing is escaped.
func Format(quote, prefix, suffix string) string {
	return prefix + quote + suffix
}

// Truncate cuts text to at most limit bytes without splitting a UTF-8
// sequence. A non-positive limit leaves text unchanged.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
