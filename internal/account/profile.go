// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"encoding/json"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// Profile fields a user may change.
const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldAge      = "age"
)

// UpdatableFields is the allow-list accepted by ParseProfileChanges.
var UpdatableFields = []string{FieldName, FieldEmail, FieldPassword, FieldAge}

// ProfileChanges is a partial profile update. Nil fields are left unchanged.
type ProfileChanges struct {
	Name     *string
	Email    *string
	Password *string
	Age      *int
}

// Empty reports whether no field is set.
func (c ProfileChanges) Empty() bool {
	return c.Name == nil && c.Email == nil && c.Password == nil && c.Age == nil
}

// Fields lists the names of the set fields in allow-list order.
func (c ProfileChanges) Fields() []string {
	var out []string
	if c.Name != nil {
		out = append(out, FieldName)
	}
	if c.Email != nil {
		out = append(out, FieldEmail)
	}
	if c.Password != nil {
		out = append(out, FieldPassword)
	}
	if c.Age != nil {
		out = append(out, FieldAge)
	}
	return out
}

// ParseProfileChanges converts a loosely typed field map, as decoded from JSON
// or collected from key=value pairs, into ProfileChanges. Any key outside
// UpdatableFields fails the whole update with ErrValidation.
func ParseProfileChanges(fields map[string]any) (ProfileChanges, error) {
	var unknown []string
	for key := range fields {
		if !slices.Contains(UpdatableFields, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ProfileChanges{}, oops.Code("USER_INVALID_UPDATE").
			With("fields", unknown).
			With("allowed", UpdatableFields).
			Wrapf(ErrValidation, "invalid update field(s): %s", strings.Join(unknown, ", "))
	}

	var c ProfileChanges
	for key, raw := range fields {
		if key == FieldAge {
			age, err := toInt(raw)
			if err != nil {
				return ProfileChanges{}, oops.Code("USER_INVALID_AGE").With("field", key).
					Wrapf(ErrValidation, "age must be a whole number")
			}
			c.Age = &age
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return ProfileChanges{}, oops.Code("USER_INVALID_UPDATE").With("field", key).
				Wrapf(ErrValidation, "%s must be a string", key)
		}
		switch key {
		case FieldName:
			c.Name = &s
		case FieldEmail:
			c.Email = &s
		case FieldPassword:
			c.Password = &s
		}
	}
	return c, nil
}

// normalize trims and validates every set field.
func (c ProfileChanges) normalize() (ProfileChanges, error) {
	if c.Name != nil {
		name := NormalizeName(*c.Name)
		if err := ValidateName(name); err != nil {
			return c, err
		}
		c.Name = &name
	}
	if c.Email != nil {
		email := NormalizeEmail(*c.Email)
		if err := ValidateEmail(email); err != nil {
			return c, err
		}
		c.Email = &email
	}
	if c.Password != nil {
		password := NormalizePassword(*c.Password)
		if err := ValidatePassword(password); err != nil {
			return c, err
		}
		c.Password = &password
	}
	if c.Age != nil {
		if err := ValidateAge(*c.Age); err != nil {
			return c, err
		}
	}
	return c, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, strconv.ErrRange
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, strconv.ErrSyntax
	}
}
