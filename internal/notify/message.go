// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify queues account lifecycle notifications and delivers them
// in the background.
package notify

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies a notification template.
type Kind string

// Notification kinds.
const (
	KindWelcome  Kind = "welcome"
	KindDeletion Kind = "deletion"
)

// Message is one queued notification.
type Message struct {
	ID        ulid.ULID `json:"id"`
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	Name      string    `json:"name"`
	From      string    `json:"from"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(kind Kind, to, name, from string, now time.Time) Message {
	return Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Kind:      kind,
		To:        to,
		Name:      name,
		From:      from,
		CreatedAt: now.UTC(),
	}
}

// Subject returns the subject line for the message kind.
func (m Message) Subject() string {
	switch m.Kind {
	case KindWelcome:
		return "Welcome to Task Crusher!"
	case KindDeletion:
		return "Your Task Crusher Account Has Been Deleted"
	default:
		return "Task Crusher"
	}
}

// Body returns the plain text body for the message kind.
func (m Message) Body() string {
	switch m.Kind {
	case KindWelcome:
		return fmt.Sprintf("Hi %s,\n\n"+
			"Welcome to Task Crusher! Task Crusher helps you track your tasks, "+
			"stay organized, and get them done.\n\n"+
			"Get started by logging in and adding your first task.\n\n"+
			"Cheers,\nThe Task Crusher Team", m.Name)
	case KindDeletion:
		return fmt.Sprintf("Hi %s,\n\n"+
			"This confirms that your Task Crusher account and all of its tasks "+
			"have been deleted.\n\n"+
			"You are welcome to sign up again at any time.\n\n"+
			"Cheers,\nThe Task Crusher Team", m.Name)
	default:
		return ""
	}
}
