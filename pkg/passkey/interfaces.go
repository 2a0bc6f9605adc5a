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

import "context"

// DocumentStore persists one versioned document per account. The version
// field gives the orchestrator the optimistic concurrency it needs: the
// challenge consume and the counter update are each a compare-and-set,
// so no store-native transaction support is required.
type DocumentStore interface {
	// Get returns the account document and its current version. Unknown
	// accounts return an empty document with version zero, not an error.
	Get(ctx context.Context, accountID string) (AccountDocument, uint64, error)

	// CompareAndSet writes the document if the stored version still equals
	// expected, and returns ErrVersionConflict otherwise. Expected version
	// zero creates the document.
	CompareAndSet(ctx context.Context, accountID string, doc AccountDocument, expected uint64) error
}

// Directory resolves email addresses to canonical account ids. It is a
// read-only view of the external account system; accounts are never
// created here.
type Directory interface {
	// AccountIDByEmail returns the account id backing an email address,
	// or ErrAccountNotFound.
	AccountIDByEmail(ctx context.Context, email string) (string, error)
}

// IdentityBridge connects ceremonies to the primary identity system: it
// resolves human identifiers to account ids, mints the post-authentication
// bearer token, and validates the bearer presented on registration calls.
// Token format and session semantics belong to the identity system.
type IdentityBridge interface {
	// ResolveAccountID maps an identifier to a canonical account id. An
	// identifier without an "@" is already an account id; otherwise it is
	// looked up as an email. Fails with ErrAccountNotFound, never creates.
	ResolveAccountID(ctx context.Context, identifier string) (string, error)

	// IssueToken mints an opaque bearer credential for the account. It is
	// called exactly once, after a successful authentication verify.
	IssueToken(ctx context.Context, accountID string) (string, error)

	// VerifyToken validates a bearer token and returns the account id it
	// was issued to.
	VerifyToken(ctx context.Context, token string) (string, error)
}
