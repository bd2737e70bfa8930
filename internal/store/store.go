// Package store persists session and expense state as opaque key-value blobs.
//
// Three backends implement Store: an in-process map, a SQLite file and Redis.
// Callers never see which one they talk to.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Keys used by the auth manager and the expense log.
const (
	KeySchemaVersion   = "bw:schema_version"
	KeyIsAuthenticated = "bw:is_authenticated"
	KeyAccessToken     = "bw:access_token"
	KeyRefreshToken    = "bw:refresh_token"
	KeyUser            = "bw:user"
	KeyExpenses        = "bw:expenses"
)

// SchemaVersion is the layout version written alongside the blobs.
const SchemaVersion = 1

var (
	ErrClosed            = errors.New("store closed")
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// SessionKeys lists every key cleared on sign-out.
func SessionKeys() []string {
	return []string{KeyIsAuthenticated, KeyAccessToken, KeyRefreshToken, KeyUser}
}

// Store is a string key-value store. SetMany applies all pairs or none.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// EnsureSchema stamps an empty store with SchemaVersion and rejects stores
// written by a newer layout.
func EnsureSchema(ctx context.Context, s Store) error {
	raw, ok, err := s.Get(ctx, KeySchemaVersion)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if !ok {
		return s.Set(ctx, KeySchemaVersion, strconv.Itoa(SchemaVersion))
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedSchema, raw)
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: stored %d, supported %d", ErrUnsupportedSchema, v, SchemaVersion)
	}
	if v < SchemaVersion {
		return s.Set(ctx, KeySchemaVersion, strconv.Itoa(SchemaVersion))
	}
	return nil
}
