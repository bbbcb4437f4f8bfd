// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "context"

// Notifier sends account lifecycle notifications. Calls must not block on
// delivery and never report delivery failures; implementations log them.
type Notifier interface {
	// NotifyWelcome announces a new registration to the user.
	NotifyWelcome(ctx context.Context, email, name string)

	// NotifyDeletion confirms an account deletion to the former user.
	NotifyDeletion(ctx context.Context, email, name string)
}

// notifyWelcome sends a welcome notification. If n is nil, this is a no-op.
func notifyWelcome(ctx context.Context, n Notifier, u PublicUser) {
	if n == nil {
		return
	}
	n.NotifyWelcome(context.WithoutCancel(ctx), u.Email, u.Name)
}

// notifyDeletion sends a deletion notification. If n is nil, this is a no-op.
func notifyDeletion(ctx context.Context, n Notifier, u PublicUser) {
	if n == nil {
		return
	}
	n.NotifyDeletion(context.WithoutCancel(ctx), u.Email, u.Name)
}
