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

// Package passkey orchestrates WebAuthn registration and authentication
// ceremonies for an existing account system.
//
// This package wraps the go-webauthn/webauthn library and provides:
//   - Per-request origin validation and Relying Party ID resolution
//   - A single versioned document per account holding the credential list
//     and the one outstanding ceremony challenge
//   - Pluggable document storage with optimistic concurrency (in-memory
//     and SQLite implementations are provided)
//   - An identity bridge that resolves human identifiers to account ids
//     and mints a bearer token after a successful authentication
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Service layer (Service) - The five-operation ceremony state machine
//  2. Storage layer (DocumentStore) - Versioned per-account persistence
//  3. HTTP layer (pkg/passkey/http) - The single ceremony endpoint
//
// # Ceremony model
//
// Each account has at most one ceremony in flight. Issuing options for an
// account overwrites any live challenge; verifying consumes the challenge
// exactly once, on success or failure. Signature counters are enforced to
// be strictly increasing, with the counter update committed through a
// compare-and-set on the account document so concurrent verifies can never
// both be accepted.
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPDisplayName:  "My App",
//	        DefaultRPID:    "localhost",
//	        AllowedOrigins: []string{"https://localhost:3000"},
//	    },
//	    Store:    passkey.NewMemoryDocumentStore(),
//	    Identity: bridge,
//	})
//
// For production, implement DocumentStore with your database or use the
// SQLite store in internal/storage/sqlite.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package passkey
