package util

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone reduces raw to digits and prefixes countryCode unless the
// number already carries it. It reports false when no digits remain.
func NormalizePhone(raw, countryCode string) (string, bool) {
	digits := phonenumbers.NormalizeDigitsOnly(strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:"))
	if digits == "" {
		return "", false
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return digits, true
}

// E164 returns the +-prefixed form of a normalized number.
func E164(digits string) string {
	if strings.HasPrefix(digits, "+") {
		return digits
	}
	return "+" + digits
}
