// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite persists registered clients and federation trusts in SQLite,
// so registrations survive restarts of a single-node deployment.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// Store implements storage.ClientStore and storage.FederationStore.
type Store struct {
	db *sql.DB
}

var (
	_ storage.ClientStore     = (*Store)(nil)
	_ storage.FederationStore = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateClient inserts a new client.
func (s *Store) CreateClient(ctx context.Context, client *storage.Client) error {
	stored := *client
	stored.Revision = 1
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encoding client: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO clients (client_id, metadata, revision) VALUES (?, ?, ?)`,
		client.ID, data, stored.Revision,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: client %s", storage.ErrAlreadyExists, client.ID)
		}
		return fmt.Errorf("inserting client: %w", err)
	}
	client.Revision = stored.Revision
	return nil
}

// GetClient loads a client by ID.
func (s *Store) GetClient(ctx context.Context, id string) (*storage.Client, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM clients WHERE client_id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: client %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	return decodeClient(data)
}

// UpdateClient replaces an existing client if its revision is current.
func (s *Store) UpdateClient(ctx context.Context, client *storage.Client) error {
	next := *client
	next.Revision++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encoding client: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET metadata = ?, revision = ?, updated_at = ?
		 WHERE client_id = ? AND revision = ?`,
		data, next.Revision, time.Now().UTC().Format(time.RFC3339Nano), client.ID, client.Revision,
	)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		if _, err := s.GetClient(ctx, client.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: client %s", storage.ErrConflict, client.ID)
	}
	client.Revision = next.Revision
	return nil
}

// ListClients returns every client ordered by ID.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT metadata FROM clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var clients []*storage.Client
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		c, err := decodeClient(data)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func decodeClient(data []byte) (*storage.Client, error) {
	var c storage.Client
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding client: %w", err)
	}
	return &c, nil
}

// CreateTrust inserts a federation trust.
func (s *Store) CreateTrust(ctx context.Context, trust *storage.FederationTrust) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO federation_trusts (
			id, federation_id, client_id, redirect_uri, display_name, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trust.ID, trust.FederationID, trust.ClientID, trust.RedirectURI,
		trust.DisplayName, trust.Active, trust.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: federation trust", storage.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting federation trust: %w", err)
	}
	return nil
}

// ListTrusts returns the federation trusts recorded for clientID.
func (s *Store) ListTrusts(ctx context.Context, clientID string) ([]*storage.FederationTrust, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, federation_id, client_id, redirect_uri, display_name, active, created_at
		FROM federation_trusts WHERE client_id = ? ORDER BY created_at`, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing federation trusts: %w", err)
	}
	defer rows.Close()

	trusts := []*storage.FederationTrust{}
	for rows.Next() {
		var (
			t         storage.FederationTrust
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.FederationID, &t.ClientID, &t.RedirectURI,
			&t.DisplayName, &t.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning federation trust: %w", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing trust timestamp: %w", err)
		}
		trusts = append(trusts, &t)
	}
	return trusts, rows.Err()
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
