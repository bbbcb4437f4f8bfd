// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"simple", "mike@example.com", true},
		{"subdomain", "a.b+tag@mail.example.co.uk", true},
		{"empty", "", false},
		{"no at", "mike.example.com", false},
		{"no domain dot", "mike@localhost", false},
		{"trailing dot", "mike@example.", false},
		{"display name", "Mike <mike@example.com>", false},
		{"spaces", "mi ke@example.com", false},
		{"too long", strings.Repeat("a", 250) + "@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := account.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorIs(t, err, account.ErrValidation, "USER_INVALID_EMAIL")
			errutil.AssertErrorContext(t, err, "field", "email")
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"seven characters", "abc1234", true},
		{"mixed", "Secure123", true},
		{"too short", "abc123", false},
		{"contains password", "mypassword1", false},
		{"contains password any case", "MyPassword123", false},
		{"is password", "PASSWORD", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := account.ValidatePassword(tt.password)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorIs(t, err, account.ErrValidation, "USER_INVALID_PASSWORD")
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, account.ValidateName("Mike"))
	errutil.AssertErrorIs(t, account.ValidateName(""), account.ErrValidation, "USER_INVALID_NAME")
	errutil.AssertErrorIs(t, account.ValidateName(strings.Repeat("n", account.MaxNameLength+1)),
		account.ErrValidation, "USER_INVALID_NAME")
}

func TestValidateAge(t *testing.T) {
	assert.NoError(t, account.ValidateAge(0))
	assert.NoError(t, account.ValidateAge(42))
	errutil.AssertErrorIs(t, account.ValidateAge(-1), account.ErrValidation, "USER_INVALID_AGE")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "mike@example.com", account.NormalizeEmail("  Mike@Example.COM "))
	assert.Equal(t, "Mike", account.NormalizeName("\tMike\n"))
	assert.Equal(t, "Secure123", account.NormalizePassword(" Secure123 "))
}
