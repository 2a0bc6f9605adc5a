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

// Package sqlite provides a durable account document store backed by a
// single SQLite file. Versioned compare-and-set is expressed as a
// conditional UPDATE, so optimistic concurrency survives process
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeremyhahn/passkeyd/pkg/passkey"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS account_documents (
	account_id TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	version    INTEGER NOT NULL
);
`

// Store implements passkey.DocumentStore over SQLite. One row holds the
// serialized document and its version for each account.
type Store struct {
	db *sql.DB
}

var _ passkey.DocumentStore = (*Store)(nil)

// Open opens the store at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the account's document and version. Unknown accounts
// yield an empty document at version zero.
func (s *Store) Get(ctx context.Context, accountID string) (passkey.AccountDocument, uint64, error) {
	var raw string
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM account_documents WHERE account_id = ?`,
		accountID,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return passkey.AccountDocument{AccountID: accountID}, 0, nil
	}
	if err != nil {
		return passkey.AccountDocument{}, 0, fmt.Errorf("get account document: %w", err)
	}

	var doc passkey.AccountDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return passkey.AccountDocument{}, 0, fmt.Errorf("decode account document: %w", err)
	}
	return doc, version, nil
}

// CompareAndSet writes the document if the stored version still matches
// expected. An expected version of zero creates the row.
func (s *Store) CompareAndSet(ctx context.Context, accountID string, doc passkey.AccountDocument, expected uint64) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode account document: %w", err)
	}

	var res sql.Result
	if expected == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO account_documents (account_id, doc, version) VALUES (?, ?, 1)
			 ON CONFLICT(account_id) DO NOTHING`,
			accountID, string(raw),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE account_documents SET doc = ?, version = version + 1
			 WHERE account_id = ? AND version = ?`,
			string(raw), accountID, expected,
		)
	}
	if err != nil {
		return fmt.Errorf("write account document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write account document: %w", err)
	}
	if affected == 0 {
		return passkey.ErrVersionConflict
	}
	return nil
}
