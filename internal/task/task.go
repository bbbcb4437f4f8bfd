// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package task holds the task entity the account core deletes on cascade.
package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxDescriptionLength bounds a task description.
const MaxDescriptionLength = 1000

// ErrInvalid is wrapped by task validation failures.
var ErrInvalid = errors.New("invalid task")

// Task is a unit of work owned by a user.
type Task struct {
	ID          ulid.ULID
	Owner       ulid.ULID
	Description string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTask creates an open task for owner with a trimmed description.
func NewTask(owner ulid.ULID, description string) (*Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, oops.Code("TASK_INVALID_DESCRIPTION").Wrapf(ErrInvalid, "description cannot be empty")
	}
	if len(description) > MaxDescriptionLength {
		return nil, oops.Code("TASK_INVALID_DESCRIPTION").
			With("max", MaxDescriptionLength).
			Wrapf(ErrInvalid, "description must be at most %d characters", MaxDescriptionLength)
	}
	if owner == (ulid.ULID{}) {
		return nil, oops.Code("TASK_INVALID_OWNER").Wrapf(ErrInvalid, "owner is required")
	}
	now := time.Now()
	return &Task{
		ID:          ulid.Make(),
		Owner:       owner,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Repository manages task persistence.
type Repository interface {
	// Create stores a new task.
	Create(ctx context.Context, t *Task) error

	// ListByOwner returns the owner's tasks, oldest first.
	ListByOwner(ctx context.Context, owner ulid.ULID) ([]*Task, error)

	// DeleteByOwner removes every task of owner and returns how many were removed.
	DeleteByOwner(ctx context.Context, owner ulid.ULID) (int64, error)
}
