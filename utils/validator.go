// utils/validator.go - Input validation
package utils

import (
	"strings"
	"unicode"
)

// SanitizeInput trims free text and drops null bytes and other control characters
// except newlines and tabs.
func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)

	input = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)

	return input
}
