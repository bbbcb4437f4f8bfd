// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "errors"

// Sentinel errors for the account taxonomy. Errors returned by this package and
// its repositories wrap exactly one of these, so callers classify with errors.Is
// or KindOf and read details from the oops code and context.
var (
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrAuthentication   = errors.New("unable to login")
	ErrAuthorization    = errors.New("not authorized")
	ErrNotFound         = errors.New("not found")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrInternal         = errors.New("internal error")
)

// Kind names a class of failure a caller may react to.
type Kind string

// Failure kinds.
const (
	KindValidation       Kind = "validation"
	KindDuplicateEmail   Kind = "duplicate_email"
	KindAuthentication   Kind = "authentication"
	KindAuthorization    Kind = "authorization"
	KindNotFound         Kind = "not_found"
	KindPayloadTooLarge  Kind = "payload_too_large"
	KindUnsupportedMedia Kind = "unsupported_media"
	KindInternal         Kind = "internal"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrValidation, KindValidation},
	{ErrDuplicateEmail, KindDuplicateEmail},
	{ErrAuthentication, KindAuthentication},
	{ErrAuthorization, KindAuthorization},
	{ErrNotFound, KindNotFound},
	{ErrPayloadTooLarge, KindPayloadTooLarge},
	{ErrUnsupportedMedia, KindUnsupportedMedia},
}

// KindOf classifies err. It returns the empty kind for a nil error and
// KindInternal for anything that does not wrap a taxonomy sentinel.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}
