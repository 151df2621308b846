// Package phone normalizes Brazilian phone numbers to the canonical digit
// form used as the lead business key, and formats numbers for the messaging
// channel. This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

const (
	defaultRegion = "BR"
	countryCode   = "55"
)

// ErrUnrecognized is returned when a raw value cannot be normalized into a
// canonical Brazilian number.
var ErrUnrecognized = errors.New("unrecognized phone number format")

// Canonical reduces a raw phone value to the canonical 13-digit Brazilian
// mobile form: country code, two-digit area code, nine-digit subscriber
// number. It strips formatting, drops trunk zeros, prepends the country code
// when absent, and inserts the mobile ninth digit for legacy eight-digit
// subscriber numbers.
func Canonical(input string) (string, error) {
	var b strings.Builder
	for _, r := range input {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")

	switch {
	case digits == "":
		return "", ErrUnrecognized
	case len(digits) == 13 && strings.HasPrefix(digits, countryCode):
		return digits, nil
	case len(digits) == 12 && strings.HasPrefix(digits, countryCode):
		// Country and area code present, legacy 8-digit subscriber number.
		return digits[:4] + "9" + digits[4:], nil
	case len(digits) == 11:
		return countryCode + digits, nil
	case len(digits) == 10:
		return countryCode + digits[:2] + "9" + digits[2:], nil
	default:
		return "", ErrUnrecognized
	}
}

// NormalizeE164 formats a phone number in E.164 when it parses as a valid
// number for the default region. Invalid or unparseable input is returned
// trimmed, so callers can still log or store whatever the caller sent.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	parsed, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return trimmed
	}

	return phonenumbers.Format(parsed, phonenumbers.E164)
}
