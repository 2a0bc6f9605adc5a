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
	"sync"
)

// MemoryDocumentStore is an in-memory implementation of DocumentStore.
// This is intended for development and testing only.
type MemoryDocumentStore struct {
	mu       sync.RWMutex
	docs     map[string]AccountDocument
	versions map[string]uint64
}

// NewMemoryDocumentStore creates a new in-memory document store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:     make(map[string]AccountDocument),
		versions: make(map[string]uint64),
	}
}

// Get returns the account document and its version.
func (s *MemoryDocumentStore) Get(ctx context.Context, accountID string) (AccountDocument, uint64, error) {
	if err := ctx.Err(); err != nil {
		return AccountDocument{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[accountID]
	if !ok {
		return AccountDocument{AccountID: accountID}, 0, nil
	}
	return doc.Clone(), s.versions[accountID], nil
}

// CompareAndSet writes the document if the stored version matches.
func (s *MemoryDocumentStore) CompareAndSet(ctx context.Context, accountID string, doc AccountDocument, expected uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versions[accountID] != expected {
		return ErrVersionConflict
	}

	s.docs[accountID] = doc.Clone()
	s.versions[accountID] = expected + 1
	return nil
}

// Count returns the number of account documents in the store.
func (s *MemoryDocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Clear removes all documents from the store.
func (s *MemoryDocumentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]AccountDocument)
	s.versions = make(map[string]uint64)
}
