// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package accounttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/account"
)

// commitDelay keeps concurrent transactions overlapping long enough for a
// lock released before commit to show up as a lost write.
const commitDelay = 2 * time.Millisecond

// CheckConcurrentIssue issues n tokens for one user in parallel and requires
// every one of them to be stored and to authenticate.
func CheckConcurrentIssue(t *testing.T, f *Fixture, n int) {
	t.Helper()
	ctx := context.Background()
	f.Store.SetCommitDelay(commitDelay)
	defer f.Store.SetCommitDelay(0)

	user, err := f.Credentials.Register(ctx, "Mike", "concurrent-issue@example.com", "Secure123", 27)
	require.NoError(t, err)

	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := f.Tokens.Issue(ctx, user.ID)
			assert.NoError(t, err)
			tokens[i] = token
		}()
	}
	wg.Wait()

	stored, err := f.Credentials.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, tokens, stored.Tokens)
	for _, token := range tokens {
		_, err := f.Tokens.Authenticate(ctx, token)
		assert.NoError(t, err)
	}
}

// CheckIssueDuringRevokeAll runs n Issue calls alongside RevokeAll. Tokens
// issued before they started must stay revoked, and whatever remains must
// be among the tokens issued alongside.
func CheckIssueDuringRevokeAll(t *testing.T, f *Fixture, n int) {
	t.Helper()
	ctx := context.Background()

	user, err := f.Credentials.Register(ctx, "Mike", "revoke-all@example.com", "Secure123", 27)
	require.NoError(t, err)
	var before []string
	for range 3 {
		token, err := f.Tokens.Issue(ctx, user.ID)
		require.NoError(t, err)
		before = append(before, token)
	}

	f.Store.SetCommitDelay(commitDelay)
	defer f.Store.SetCommitDelay(0)

	during := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.Tokens.RevokeAll(ctx, user.ID))
	}()
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := f.Tokens.Issue(ctx, user.ID)
			assert.NoError(t, err)
			during[i] = token
		}()
	}
	wg.Wait()

	stored, err := f.Credentials.Get(ctx, user.ID)
	require.NoError(t, err)
	for _, token := range before {
		assert.NotContains(t, stored.Tokens, token, "a revoked token came back")
		_, err := f.Tokens.Authenticate(ctx, token)
		assert.ErrorIs(t, err, account.ErrAuthorization)
	}
	assert.Subset(t, during, stored.Tokens)
}
