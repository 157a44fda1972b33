package util

import (
	"strings"
	"unicode"
)

const (
	minPhoneDigits = 4
	maxPhoneDigits = 15
)

// NormalizePhone strips the separators people type into phone numbers.
// A leading '+' is kept. The result is empty when the input is not a number.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	digits := 0
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return ""
	}
	return b.String()
}
