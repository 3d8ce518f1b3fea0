package identity

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhone is returned when an assembled number does not form a
// valid E.164 phone (leading + followed by 8 to 15 digits).
var ErrInvalidPhone = errors.New("invalid phone number")

var (
	e164Pattern = regexp.MustCompile(`^\+[0-9]{8,15}$`)
	nonDigits   = regexp.MustCompile(`[^0-9]`)
	phoneNoise  = regexp.MustCompile(`[\s\-()]`)
)

// NormalizePhone strips spaces, dashes and parentheses and rewrites the
// international 00 prefix to +.
func NormalizePhone(input string) string {
	trimmed := phoneNoise.ReplaceAllString(input, "")
	if strings.HasPrefix(trimmed, "00") {
		return "+" + trimmed[2:]
	}
	return trimmed
}

// IsValidE164 reports whether phone is a full E.164 number.
func IsValidE164(phone string) bool {
	return e164Pattern.MatchString(phone)
}

// BuildE164 assembles a full phone number from a country dial code and a
// free-text subscriber part. Non-digits are dropped from the subscriber
// and a single leading domestic trunk 0 is stripped, so dial code +383
// with subscriber 045123456 yields +38345123456.
func BuildE164(dialCode, subscriber string) (string, error) {
	digits := nonDigits.ReplaceAllString(subscriber, "")
	digits = strings.TrimPrefix(digits, "0")
	combined := dialCode + digits
	if !IsValidE164(combined) {
		return "", ErrInvalidPhone
	}
	return combined, nil
}
