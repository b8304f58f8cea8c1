// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sqlite stores login attempts and sessions in a SQLite database
// file.  State survives a restart, but the file can't be shared between
// hosts, so it suits single node deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hashicorp/oidc-webapp/attempt"
	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
)

//go:embed schema.sql
var schema string

// ErrInvalidParameter is returned for invalid arguments.
var ErrInvalidParameter = errors.New("invalid parameter")

// Store implements attempt.Store and session.Store.  Expired rows are
// removed whenever a new row of the same kind is written.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ attempt.Store = (*Store)(nil)
	_ session.Store = (*Store)(nil)
)

// Open opens, creating it if needed, the database at path.
func Open(path string) (*Store, error) {
	const op = "sqlite.Open"
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, ErrInvalidParameter)
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// one writer at a time keeps the atomic consume free of SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: unable to create schema: %w", op, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put implements attempt.Store.
func (s *Store) Put(ctx context.Context, a *oidc.Attempt) error {
	const op = "Store.Put"
	if a == nil {
		return fmt.Errorf("%s: attempt is nil: %w", op, oidc.ErrNilParameter)
	}
	if a.State == "" {
		return fmt.Errorf("%s: state is empty: %w", op, oidc.ErrInvalidParameter)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE expires_at <= ?`, toMillis(s.now())); err != nil {
		return fmt.Errorf("%s: unable to remove expired attempts: %w", op, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (state, data, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(state) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		a.State, data, toMillis(a.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Take implements attempt.Store.  The row is read and deleted by a single
// DELETE .. RETURNING statement.
func (s *Store) Take(ctx context.Context, state string) (*oidc.Attempt, error) {
	const op = "Store.Take"
	var data []byte
	err := s.db.QueryRowContext(ctx, `DELETE FROM login_attempts WHERE state = ? RETURNING data`, state).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, attempt.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var a oidc.Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%s: unable to decode attempt: %w", op, err)
	}
	return &a, nil
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	const op = "Store.Save"
	if sess == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	if sess.ID == "" {
		return fmt.Errorf("%s: session id is empty: %w", op, oidc.ErrInvalidParameter)
	}
	data, err := session.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE max_expires_at <= ?`, toMillis(s.now())); err != nil {
		return fmt.Errorf("%s: unable to remove expired sessions: %w", op, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, handle, subject, data, max_expires_at, version) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    handle = excluded.handle,
		    subject = excluded.subject,
		    data = excluded.data,
		    max_expires_at = excluded.max_expires_at,
		    version = excluded.version`,
		sess.ID, sess.Handle, sess.Subject, data, toMillis(sess.MaxExpiresAt), int64(sess.Version),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Update implements session.Store.  The version check and the write are a
// single UPDATE statement.
func (s *Store) Update(ctx context.Context, sess *session.Session, version uint64) error {
	const op = "Store.Update"
	if sess == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	data, err := session.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET handle = ?, subject = ?, data = ?, max_expires_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		sess.Handle, sess.Subject, data, toMillis(sess.MaxExpiresAt), int64(sess.Version),
		sess.ID, int64(version),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		return nil
	}
	var cur int64
	err = s.db.QueryRowContext(ctx, `SELECT version FROM sessions WHERE id = ?`, sess.ID).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, session.ErrSessionNotFound)
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, session.ErrSessionChanged)
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	const op = "Store.Load"
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, session.ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sess, err := session.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "Store.Delete"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteVersion implements session.Store.
func (s *Store) DeleteVersion(ctx context.Context, id string, version uint64) error {
	const op = "Store.DeleteVersion"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND version = ?`, id, int64(version)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
