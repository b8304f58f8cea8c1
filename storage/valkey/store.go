// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package valkey stores login attempts and sessions in Valkey, so every
// instance of the application behind a load balancer sees the same state.
package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/hashicorp/oidc-webapp/attempt"
	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
)

const (
	// DefaultKeyPrefix namespaces every key written by a Store.
	DefaultKeyPrefix = "oidc-webapp:"

	attemptKey = "attempt:"
	sessionKey = "session:"

	// minTTL is the shortest expiry a Store writes.
	minTTL = time.Second
)

// ErrInvalidParameter is returned for invalid arguments.
var ErrInvalidParameter = errors.New("invalid parameter")

// updateScript replaces KEYS[1] with ARGV[1] and a PX of ARGV[3] when the
// stored session's version is ARGV[2].  It returns -1 for a missing key, 0
// for another version and 1 once replaced.
var updateScript = valkey.NewLuaScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return -1
end
if tonumber(cjson.decode(cur)['version'] or 0) ~= tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// deleteVersionScript deletes KEYS[1] when the stored session's version is
// ARGV[1].
var deleteVersionScript = valkey.NewLuaScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
if tonumber(cjson.decode(cur)['version'] or 0) ~= tonumber(ARGV[1]) then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

// Store implements attempt.Store and session.Store.  Keys expire on their
// own: attempts at their ExpiresAt and sessions at their MaxExpiresAt.
type Store struct {
	client valkey.Client
	prefix string
}

var (
	_ attempt.Store = (*Store)(nil)
	_ session.Store = (*Store)(nil)
)

// Options configures NewStore.
type Options struct {
	// Addrs are the initial addresses of the Valkey server or cluster.
	Addrs []string

	Username string
	Password string

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string
}

// NewStore connects to Valkey.
func NewStore(opts Options) (*Store, error) {
	const op = "valkey.NewStore"
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("%s: no valkey addresses: %w", op, ErrInvalidParameter)
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: opts.Addrs,
		Username:    opts.Username,
		Password:    opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to connect: %w", op, err)
	}
	return NewStoreWithClient(client, opts.KeyPrefix), nil
}

// NewStoreWithClient returns a Store using an existing client.  An empty
// prefix uses DefaultKeyPrefix.
func NewStoreWithClient(client valkey.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *Store) Close() {
	s.client.Close()
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
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
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.set(ctx, s.prefix+attemptKey+a.State, b, a.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Take implements attempt.Store with GETDEL, so concurrent callbacks for
// one state can't both succeed.
func (s *Store) Take(ctx context.Context, state string) (*oidc.Attempt, error) {
	const op = "Store.Take"
	b, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.prefix+attemptKey+state).Build()).AsBytes()
	switch {
	case valkey.IsValkeyNil(err):
		return nil, attempt.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var a oidc.Attempt
	if err := json.Unmarshal(b, &a); err != nil {
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
	b, err := session.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.set(ctx, s.prefix+sessionKey+sess.ID, b, sess.MaxExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Update implements session.Store.  The version check and the write run in a
// single script, so they're atomic on the server.
func (s *Store) Update(ctx context.Context, sess *session.Session, version uint64) error {
	const op = "Store.Update"
	if sess == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	b, err := session.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	args := []string{
		valkey.BinaryString(b),
		strconv.FormatUint(version, 10),
		strconv.FormatInt(ttl(sess.MaxExpiresAt).Milliseconds(), 10),
	}
	n, err := updateScript.Exec(ctx, s.client, []string{s.prefix + sessionKey + sess.ID}, args).AsInt64()
	switch {
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	case n < 0:
		return fmt.Errorf("%s: %w", op, session.ErrSessionNotFound)
	case n == 0:
		return fmt.Errorf("%s: %w", op, session.ErrSessionChanged)
	}
	return nil
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	const op = "Store.Load"
	b, err := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+sessionKey+id).Build()).AsBytes()
	switch {
	case valkey.IsValkeyNil(err):
		return nil, session.ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sess, err := session.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "Store.Delete"
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.prefix+sessionKey+id).Build()).Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteVersion implements session.Store.
func (s *Store) DeleteVersion(ctx context.Context, id string, version uint64) error {
	const op = "Store.DeleteVersion"
	keys := []string{s.prefix + sessionKey + id}
	if err := deleteVersionScript.Exec(ctx, s.client, keys, []string{strconv.FormatUint(version, 10)}).Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	cmd := s.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(ttl(expiresAt)).Build()
	return s.client.Do(ctx, cmd).Error()
}

// ttl is the time left until expiresAt, at least minTTL.
func ttl(expiresAt time.Time) time.Duration {
	d := time.Until(expiresAt)
	if d < minTTL {
		d = minTTL
	}
	return d
}
