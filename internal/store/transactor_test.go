// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/store"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

func TestTransactor_CommitsOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM tasks`).WithArgs("owner").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	err = store.NewTransactor(mock).InTransaction(context.Background(), func(ctx context.Context) error {
		assert.True(t, store.InTx(ctx))
		q := store.QuerierFrom(ctx, mock)
		assert.NotEqual(t, mock, q, "queries inside fn use the transaction")
		_, err := q.Exec(ctx, `DELETE FROM tasks WHERE owner = $1`, "owner")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = store.NewTransactor(mock).InTransaction(context.Background(), func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err = store.NewTransactor(mock).InTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	errutil.AssertErrorCode(t, err, "TX_BEGIN_FAILED")
	assert.False(t, called)
}

func TestTransactor_CommitFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err = store.NewTransactor(mock).InTransaction(context.Background(), func(context.Context) error {
		return nil
	})
	errutil.AssertErrorCode(t, err, "TX_COMMIT_FAILED")
}

func TestTransactor_NestedCallJoins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx := store.NewTransactor(mock)
	err = tx.InTransaction(context.Background(), func(ctx context.Context) error {
		return tx.InTransaction(ctx, func(inner context.Context) error {
			assert.Equal(t, store.QuerierFrom(ctx, mock), store.QuerierFrom(inner, mock))
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuerierFrom_WithoutTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	assert.False(t, store.InTx(context.Background()))
	assert.Equal(t, mock, store.QuerierFrom(context.Background(), mock))
}
