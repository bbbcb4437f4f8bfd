// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

func TestParseProfileChanges(t *testing.T) {
	t.Run("accepts allow-listed fields", func(t *testing.T) {
		c, err := account.ParseProfileChanges(map[string]any{
			"name":     "Andrew",
			"email":    "andrew@example.com",
			"password": "Secure123",
			"age":      float64(30),
		})
		require.NoError(t, err)
		require.NotNil(t, c.Name)
		require.NotNil(t, c.Email)
		require.NotNil(t, c.Password)
		require.NotNil(t, c.Age)
		assert.Equal(t, "Andrew", *c.Name)
		assert.Equal(t, 30, *c.Age)
		assert.Equal(t, []string{"name", "email", "password", "age"}, c.Fields())
	})

	t.Run("rejects whole update on unknown field", func(t *testing.T) {
		c, err := account.ParseProfileChanges(map[string]any{
			"name":   "Andrew",
			"tokens": []string{},
			"_id":    "x",
		})
		errutil.AssertErrorIs(t, err, account.ErrValidation, "USER_INVALID_UPDATE")
		errutil.AssertErrorContext(t, err, "fields", []string{"_id", "tokens"})
		assert.True(t, c.Empty())
	})

	t.Run("age from string and json.Number", func(t *testing.T) {
		c, err := account.ParseProfileChanges(map[string]any{"age": "27"})
		require.NoError(t, err)
		assert.Equal(t, 27, *c.Age)

		c, err = account.ParseProfileChanges(map[string]any{"age": json.Number("28")})
		require.NoError(t, err)
		assert.Equal(t, 28, *c.Age)
	})

	t.Run("fractional age rejected", func(t *testing.T) {
		_, err := account.ParseProfileChanges(map[string]any{"age": 1.5})
		errutil.AssertErrorIs(t, err, account.ErrValidation, "USER_INVALID_AGE")
	})

	t.Run("non-string name rejected", func(t *testing.T) {
		_, err := account.ParseProfileChanges(map[string]any{"name": 7})
		errutil.AssertErrorIs(t, err, account.ErrValidation, "USER_INVALID_UPDATE")
	})

	t.Run("empty map", func(t *testing.T) {
		c, err := account.ParseProfileChanges(map[string]any{})
		require.NoError(t, err)
		assert.True(t, c.Empty())
		assert.Empty(t, c.Fields())
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, account.Kind(""), account.KindOf(nil))
	assert.Equal(t, account.KindInternal, account.KindOf(assert.AnError))
	assert.Equal(t, account.KindValidation, account.KindOf(account.ValidateAge(-1)))
	assert.Equal(t, account.KindValidation, account.KindOf(account.ErrEmptyPassword))
	assert.Equal(t, account.KindNotFound, account.KindOf(account.ErrNotFound))
}
