// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// minDeviceKeyLength is the boundary between a pairing code and a real
// device key. Pairing codes are 6 human-typed characters; device keys
// are long opaque strings. A stored value at or below this length is
// treated as absent on load, so a pairing code accidentally persisted
// as a key forces re-pairing instead of an endless 401 loop.
const minDeviceKeyLength = 20

// Storage keys within the credentials table.
const (
	keyDeviceKey           = "device_key"
	keySessionAccessToken  = "session_access_token"
	keySessionRefreshToken = "session_refresh_token"
	keySessionExpiresAt    = "session_expires_at"
	keyRememberedEmail     = "remembered_email"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SessionTokens is the admin session credential triple. Lifecycle is
// independent of the device key.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is when the access token stops being accepted.
	ExpiresAt time.Time
}

// Store is the durable credential store. It is the only component in
// the repository permitted to read or write the persisted device key;
// everything else goes through its methods.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open opens (creating if needed) the credential database at path.
// The parent directory is created with owner-only permissions — the
// file holds long-lived credentials.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("credstore: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("credstore: creating state directory: %w", err)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("credstore: opening %s: %w", path, err)
	}

	return &Store{pool: pool, logger: logger, path: path}, nil
}

// prepareConnection applies the standard pragmas and ensures the
// schema. Runs once per pooled connection.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("credstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("credstore: creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("credstore: closing %s: %w", s.path, err)
	}
	return nil
}

// DeviceKey returns the stored device key. A value that fails the
// minimum-length check is reported as absent: the device must re-pair.
func (s *Store) DeviceKey(ctx context.Context) (string, bool, error) {
	value, present, err := s.get(ctx, keyDeviceKey)
	if err != nil {
		return "", false, err
	}
	if !present {
		return "", false, nil
	}
	if len(value) <= minDeviceKeyLength {
		s.logger.Warn("stored device key is too short to be real, treating as absent",
			"length", len(value),
		)
		return "", false, nil
	}
	return value, true, nil
}

// SetDeviceKey persists the device key. Rejects values short enough
// to be a pairing code rather than a key.
func (s *Store) SetDeviceKey(ctx context.Context, key string) error {
	if len(key) <= minDeviceKeyLength {
		return fmt.Errorf("credstore: device key of length %d is below the %d-character minimum", len(key), minDeviceKeyLength)
	}
	return s.set(ctx, keyDeviceKey, key)
}

// ClearDeviceKey removes the stored device key. Idempotent.
func (s *Store) ClearDeviceKey(ctx context.Context) error {
	return s.delete(ctx, keyDeviceKey)
}

// SessionTokens returns the admin session tokens. Present only when
// all three parts are stored.
func (s *Store) SessionTokens(ctx context.Context) (SessionTokens, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return SessionTokens{}, false, fmt.Errorf("credstore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	values := make(map[string]string)
	err = sqlitex.Execute(conn,
		"SELECT key, value FROM credentials WHERE key IN (?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{keySessionAccessToken, keySessionRefreshToken, keySessionExpiresAt},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				values[stmt.ColumnText(0)] = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		return SessionTokens{}, false, fmt.Errorf("credstore: reading session tokens: %w", err)
	}

	access := values[keySessionAccessToken]
	refresh := values[keySessionRefreshToken]
	expiresText := values[keySessionExpiresAt]
	if access == "" || refresh == "" || expiresText == "" {
		return SessionTokens{}, false, nil
	}

	expiresAt, err := strconv.ParseInt(expiresText, 10, 64)
	if err != nil {
		return SessionTokens{}, false, fmt.Errorf("credstore: corrupt session expiry %q: %w", expiresText, err)
	}

	return SessionTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Unix(expiresAt, 0),
	}, true, nil
}

// SetSessionTokens stores all three session parts in one transaction.
func (s *Store) SetSessionTokens(ctx context.Context, tokens SessionTokens) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	entries := map[string]string{
		keySessionAccessToken:  tokens.AccessToken,
		keySessionRefreshToken: tokens.RefreshToken,
		keySessionExpiresAt:    strconv.FormatInt(tokens.ExpiresAt.Unix(), 10),
	}
	for key, value := range entries {
		if err := upsert(conn, key, value); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAccessToken atomically replaces the access token and its
// expiry, leaving the refresh token untouched. Used after a successful
// refresh.
func (s *Store) UpdateAccessToken(ctx context.Context, accessToken string, expiresAt time.Time) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	if err := upsert(conn, keySessionAccessToken, accessToken); err != nil {
		return err
	}
	return upsert(conn, keySessionExpiresAt, strconv.FormatInt(expiresAt.Unix(), 10))
}

// ClearSessionTokens removes all session parts. Idempotent.
func (s *Store) ClearSessionTokens(ctx context.Context) error {
	return s.delete(ctx, keySessionAccessToken, keySessionRefreshToken, keySessionExpiresAt)
}

// RememberedEmail returns the admin email remembered for the login
// form, if any.
func (s *Store) RememberedEmail(ctx context.Context) (string, bool, error) {
	return s.get(ctx, keyRememberedEmail)
}

// SetRememberedEmail stores the admin email for the login form. An
// empty value forgets it.
func (s *Store) SetRememberedEmail(ctx context.Context, email string) error {
	if email == "" {
		return s.delete(ctx, keyRememberedEmail)
	}
	return s.set(ctx, keyRememberedEmail, email)
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("credstore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var value string
	var present bool
	err = sqlitex.Execute(conn,
		"SELECT value FROM credentials WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnText(0)
				present = true
				return nil
			},
		})
	if err != nil {
		return "", false, fmt.Errorf("credstore: reading %s: %w", key, err)
	}
	return value, present, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	return upsert(conn, key, value)
}

func (s *Store) delete(ctx context.Context, keys ...string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	for _, key := range keys {
		err := sqlitex.Execute(conn,
			"DELETE FROM credentials WHERE key = ?",
			&sqlitex.ExecOptions{Args: []any{key}})
		if err != nil {
			return fmt.Errorf("credstore: deleting %s: %w", key, err)
		}
	}
	return nil
}

func upsert(conn *sqlite.Conn, key, value string) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO credentials (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("credstore: writing %s: %w", key, err)
	}
	return nil
}
