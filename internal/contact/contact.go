// Package contact normalizes the phone numbers and email addresses captured on leads.
package contact

import (
	"errors"
	"regexp"
	"strings"
)

const minPhoneDigits = 10

var (
	ErrInvalidPhone = errors.New("invalid_phone")
	ErrInvalidEmail = errors.New("invalid_email")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizePhone keeps only digits and prefixes "+". At least ten digits are required.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw) + 1)
	b.WriteByte('+')
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < minPhoneDigits {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}

// NormalizeEmail trims and lowercases raw and checks its basic shape.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}
