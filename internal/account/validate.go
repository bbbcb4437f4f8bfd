// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"net/mail"
	"strings"

	"github.com/samber/oops"
)

// Field constraints.
const (
	MinPasswordLength = 7
	MaxEmailLength    = 254
	MaxNameLength     = 100

	forbiddenPasswordWord = "password"
)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims a display name.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// NormalizePassword trims a plaintext password.
func NormalizePassword(password string) string {
	return strings.TrimSpace(password)
}

// ValidateName checks a normalized display name.
func ValidateName(name string) error {
	if name == "" {
		return oops.Code("USER_INVALID_NAME").With("field", "name").
			Wrapf(ErrValidation, "name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return oops.Code("USER_INVALID_NAME").With("field", "name").With("max", MaxNameLength).
			Wrapf(ErrValidation, "name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateEmail checks a normalized email address. The address must be a bare
// addr-spec with a dotted domain; display names and angle brackets are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("USER_INVALID_EMAIL").With("field", "email").
			Wrapf(ErrValidation, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("USER_INVALID_EMAIL").With("field", "email").With("max", MaxEmailLength).
			Wrapf(ErrValidation, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code("USER_INVALID_EMAIL").With("field", "email").With("email", email).
			Wrapf(ErrValidation, "invalid email")
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return oops.Code("USER_INVALID_EMAIL").With("field", "email").With("email", email).
			Wrapf(ErrValidation, "invalid email")
	}
	return nil
}

// ValidatePassword checks a normalized plaintext password. It must be at least
// MinPasswordLength characters and must not contain the word "password" in any case.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("USER_INVALID_PASSWORD").With("field", "password").With("min", MinPasswordLength).
			Wrapf(ErrValidation, "password must be at least %d characters", MinPasswordLength)
	}
	if strings.Contains(strings.ToLower(password), forbiddenPasswordWord) {
		return oops.Code("USER_INVALID_PASSWORD").With("field", "password").
			Wrapf(ErrValidation, "password cannot contain %q", forbiddenPasswordWord)
	}
	return nil
}

// ValidateAge checks that age is non-negative.
func ValidateAge(age int) error {
	if age < 0 {
		return oops.Code("USER_INVALID_AGE").With("field", "age").With("age", age).
			Wrapf(ErrValidation, "age must be a non-negative number")
	}
	return nil
}
