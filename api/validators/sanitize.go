package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input and truncates it to maxLen bytes without
// splitting a UTF-8 sequence. maxLen <= 0 only trims.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut]
}
