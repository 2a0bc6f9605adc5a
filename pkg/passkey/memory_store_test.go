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

package passkey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDocumentStore_GetUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	doc, version, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
	assert.Equal(t, "acct-1", doc.AccountID)
	assert.Empty(t, doc.Credentials)
	assert.Nil(t, doc.Challenge)
}

func TestMemoryDocumentStore_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	doc := AccountDocument{AccountID: "acct-1", DisplayName: "Alice"}

	// Version 0 creates.
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 0))
	assert.Equal(t, 1, store.Count())

	got, version, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, "Alice", got.DisplayName)

	// Matching version updates.
	got.DisplayName = "Alice A."
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", got, 1))

	_, version, err = store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)

	// Stale version conflicts.
	err = store.CompareAndSet(ctx, "acct-1", got, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Create against an existing row conflicts too.
	err = store.CompareAndSet(ctx, "acct-1", got, 0)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryDocumentStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	doc := AccountDocument{
		AccountID:   "acct-1",
		Credentials: []*Credential{{ID: []byte("cred-a"), SignCount: 1}},
	}
	require.NoError(t, store.CompareAndSet(ctx, "acct-1", doc, 0))

	first, _, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	first.Credentials[0].SignCount = 42

	second, _, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.Credentials[0].SignCount)
}

func TestMemoryDocumentStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	require.NoError(t, store.CompareAndSet(ctx, "acct-1", AccountDocument{AccountID: "acct-1"}, 0))
	require.NoError(t, store.CompareAndSet(ctx, "acct-2", AccountDocument{AccountID: "acct-2"}, 0))
	assert.Equal(t, 2, store.Count())

	store.Clear()
	assert.Equal(t, 0, store.Count())

	_, version, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
}
