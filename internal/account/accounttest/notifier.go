// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package accounttest

import (
	"context"
	"sync"

	"github.com/holomush/taskcrusher/internal/account"
)

// Notification is one call recorded by RecordingNotifier.
type Notification struct {
	Kind  string
	Email string
	Name  string
}

// RecordingNotifier is an account.Notifier that records every call.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

// NotifyWelcome records a welcome notification.
func (n *RecordingNotifier) NotifyWelcome(_ context.Context, email, name string) {
	n.record("welcome", email, name)
}

// NotifyDeletion records a deletion notification.
func (n *RecordingNotifier) NotifyDeletion(_ context.Context, email, name string) {
	n.record("deletion", email, name)
}

// Sent returns a copy of the recorded notifications in call order.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

func (n *RecordingNotifier) record(kind, email, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Kind: kind, Email: email, Name: name})
}

var _ account.Notifier = (*RecordingNotifier)(nil)
