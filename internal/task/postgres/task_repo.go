// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements task.Repository on PostgreSQL.
package postgres

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/taskcrusher/internal/store"
	"github.com/holomush/taskcrusher/internal/task"
)

// TaskRepository implements task.Repository and account.TaskDeleter.
type TaskRepository struct {
	pool store.Querier
}

// NewTaskRepository creates a TaskRepository.
func NewTaskRepository(pool store.Querier) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// Create stores a new task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	_, err := store.QuerierFrom(ctx, r.pool).Exec(ctx, `
		INSERT INTO tasks (id, owner, description, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID.String(), t.Owner.String(), t.Description, t.Completed, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return oops.Code("TASK_CREATE_FAILED").
			With("id", t.ID.String()).
			With("owner", t.Owner.String()).
			Wrap(err)
	}
	return nil
}

// ListByOwner returns the owner's tasks, oldest first.
func (r *TaskRepository) ListByOwner(ctx context.Context, owner ulid.ULID) ([]*task.Task, error) {
	rows, err := store.QuerierFrom(ctx, r.pool).Query(ctx, `
		SELECT id, description, completed, created_at, updated_at
		FROM tasks
		WHERE owner = $1
		ORDER BY created_at, id
	`, owner.String())
	if err != nil {
		return nil, oops.Code("TASK_QUERY_FAILED").With("owner", owner.String()).Wrap(err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t := &task.Task{Owner: owner}
		var idStr string
		if err := rows.Scan(&idStr, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, oops.Code("TASK_QUERY_FAILED").With("operation", "scan task row").Wrap(err)
		}
		if t.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("TASK_QUERY_FAILED").With("operation", "parse task id").With("id", idStr).Wrap(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TASK_QUERY_FAILED").With("operation", "iterate tasks").Wrap(err)
	}
	return tasks, nil
}

// DeleteByOwner removes every task of owner.
func (r *TaskRepository) DeleteByOwner(ctx context.Context, owner ulid.ULID) (int64, error) {
	tag, err := store.QuerierFrom(ctx, r.pool).Exec(ctx, `DELETE FROM tasks WHERE owner = $1`, owner.String())
	if err != nil {
		return 0, oops.Code("TASK_DELETE_FAILED").With("owner", owner.String()).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ task.Repository = (*TaskRepository)(nil)
