// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of passkeyd.
//
// passkeyd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/passkeyd/pkg/passkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passkeyd.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestGet_UnknownAccount(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	doc, version, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
	assert.Equal(t, "acct-1", doc.AccountID)
	assert.Empty(t, doc.Credentials)
	assert.Nil(t, doc.Challenge)
}

func TestCompareAndSet_CreateAndUpdate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	doc := passkey.AccountDocument{
		AccountID: "acct-1",
		Credentials: []*passkey.Credential{
			{ID: []byte("cred-1"), SignCount: 3},
		},
	}
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 0))

	got, version, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	require.Len(t, got.Credentials, 1)
	assert.Equal(t, []byte("cred-1"), got.Credentials[0].ID)
	assert.Equal(t, uint32(3), got.Credentials[0].SignCount)

	got.Credentials[0].SignCount = 4
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", got, 1))

	got, version, err = store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, uint32(4), got.Credentials[0].SignCount)
}

func TestCompareAndSet_StaleVersionConflicts(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	doc := passkey.AccountDocument{AccountID: "acct-1"}
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 0))
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 1))

	err := store.CompareAndSet(ctx, "acct-1", doc, 1)
	assert.ErrorIs(t, err, passkey.ErrVersionConflict)
}

func TestCompareAndSet_CreateConflict(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	doc := passkey.AccountDocument{AccountID: "acct-1"}
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 0))

	// A second create against the same account loses the race.
	err := store.CompareAndSet(ctx, "acct-1", doc, 0)
	assert.ErrorIs(t, err, passkey.ErrVersionConflict)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	doc := passkey.AccountDocument{
		AccountID: "acct-1",
		Credentials: []*passkey.Credential{
			{ID: []byte("cred-1"), PublicKey: []byte("pubkey"), SignCount: 7},
		},
	}
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 0))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, version, err := reopened.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	require.Len(t, got.Credentials, 1)
	assert.Equal(t, uint32(7), got.Credentials[0].SignCount)
}

func TestClose_NilSafe(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Close())
}
