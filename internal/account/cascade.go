// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TaskDeleter removes the tasks a user owns. It is the only contract the
// account core needs from the task collection.
type TaskDeleter interface {
	// DeleteByOwner removes every task whose owner is owner and returns how
	// many were removed.
	DeleteByOwner(ctx context.Context, owner ulid.ULID) (int64, error)
}

// CascadeDeletionCoordinator deletes a user together with every task the
// user owns.
type CascadeDeletionCoordinator struct {
	store    *CredentialStore
	tasks    TaskDeleter
	notifier Notifier
}

// NewCascadeDeletionCoordinator creates a CascadeDeletionCoordinator. The
// notifier may be nil.
func NewCascadeDeletionCoordinator(store *CredentialStore, tasks TaskDeleter, notifier Notifier) (*CascadeDeletionCoordinator, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if tasks == nil {
		return nil, oops.Errorf("task deleter is required")
	}
	return &CascadeDeletionCoordinator{store: store, tasks: tasks, notifier: notifier}, nil
}

// DeleteAccount removes the user's tasks and then the user, in one
// transaction under the user's lock. On any failure, including ctx ending
// before commit, nothing is removed. The deletion notice is sent only after
// the transaction commits.
func (c *CascadeDeletionCoordinator) DeleteAccount(ctx context.Context, userID ulid.ULID) (PublicUser, error) {
	var (
		deleted PublicUser
		removed int64
	)
	err := c.store.locked(ctx, userID, func(ctx context.Context) error {
		user, err := c.store.Get(ctx, userID)
		if err != nil {
			return err
		}

		removed, err = c.tasks.DeleteByOwner(ctx, userID)
		if err != nil {
			return oops.Code("ACCOUNT_DELETE_FAILED").
				With("operation", "delete owned tasks").
				With("user_id", userID.String()).
				Wrap(err)
		}

		if err := c.store.users.Delete(ctx, userID); err != nil {
			return wrapUnlessClassified(err, "ACCOUNT_DELETE_FAILED", "delete user")
		}

		if err := ctx.Err(); err != nil {
			return oops.Code("ACCOUNT_DELETE_ABORTED").With("user_id", userID.String()).Wrap(err)
		}

		deleted = user.Public()
		return nil
	})
	if err != nil {
		return PublicUser{}, err
	}

	c.store.logger.InfoContext(ctx, "account deleted",
		slog.String("user_id", userID.String()),
		slog.Int64("tasks_removed", removed))
	notifyDeletion(ctx, c.notifier, deleted)
	return deleted, nil
}
