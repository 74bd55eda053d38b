// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package creds persists client state that must survive restarts: the
// auth token, the signed-in display name, and small UI preferences.
package creds

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("key not found")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// KEYS
// =============================================================================

const (
	keyAuthToken        = "auth_token"
	keyDisplayName      = "display_name"
	keySidebarCollapsed = "sidebar_collapsed"
	keySelectedModel    = "selected_model"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// =============================================================================
// STORE
// =============================================================================

// Store is a small key-value store backed by SQLite. A single connection
// is used because SQLite supports only one writer at a time.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SECURITY: the token lives in this file, keep it private to the user.
	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restrict state file: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// GENERIC ACCESS
// =============================================================================

func (s *Store) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return value, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

func (s *Store) delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// TYPED ACCESSORS
// =============================================================================

// AuthToken returns the saved token, or "" when none is stored.
func (s *Store) AuthToken() (string, error) {
	token, err := s.get(keyAuthToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

// SetAuthToken persists the token for the next session.
func (s *Store) SetAuthToken(token string) error {
	return s.set(keyAuthToken, token)
}

// DisplayName returns the saved display name, or "" when none is stored.
func (s *Store) DisplayName() (string, error) {
	name, err := s.get(keyDisplayName)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return name, err
}

// SetDisplayName persists the signed-in user's display name.
func (s *Store) SetDisplayName(name string) error {
	return s.set(keyDisplayName, name)
}

// ClearAuth removes the token and display name in one transaction so a
// crash cannot leave a name without a token.
func (s *Store) ClearAuth() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	for _, key := range []string{keyAuthToken, keyDisplayName} {
		if _, err := tx.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// SidebarCollapsed returns the saved sidebar preference, defaulting to
// expanded when nothing is stored.
func (s *Store) SidebarCollapsed() (bool, error) {
	value, err := s.get(keySidebarCollapsed)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	collapsed, err := strconv.ParseBool(value)
	if err != nil {
		// Treat a corrupt value as the default rather than failing startup.
		return false, nil
	}
	return collapsed, nil
}

// SetSidebarCollapsed persists the sidebar preference.
func (s *Store) SetSidebarCollapsed(collapsed bool) error {
	return s.set(keySidebarCollapsed, strconv.FormatBool(collapsed))
}

// SelectedModel returns the saved model choice, or "" for the server default.
func (s *Store) SelectedModel() (string, error) {
	model, err := s.get(keySelectedModel)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return model, err
}

// SetSelectedModel persists the model choice.
func (s *Store) SetSelectedModel(model string) error {
	if model == "" {
		return s.delete(keySelectedModel)
	}
	return s.set(keySelectedModel, model)
}
