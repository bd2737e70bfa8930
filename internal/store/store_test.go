package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "kv", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.Get(ctx, KeyUser)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, KeyUser, `{"id":"1"}`))
			v, ok, err := s.Get(ctx, KeyUser)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"id":"1"}`, v)

			require.NoError(t, s.Set(ctx, KeyUser, `{"id":"2"}`))
			v, _, _ = s.Get(ctx, KeyUser)
			assert.Equal(t, `{"id":"2"}`, v)

			require.NoError(t, s.SetMany(ctx, map[string]string{
				KeyAccessToken:  "a",
				KeyRefreshToken: "r",
			}))
			v, _, _ = s.Get(ctx, KeyRefreshToken)
			assert.Equal(t, "r", v)

			require.NoError(t, s.Delete(ctx, SessionKeys()...))
			for _, k := range SessionKeys() {
				_, ok, err := s.Get(ctx, k)
				require.NoError(t, err)
				assert.False(t, ok, "key %s should be gone", k)
			}

			require.NoError(t, s.Delete(ctx))
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), KeyExpenses, "[]"))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(context.Background(), KeyExpenses)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	s := NewMemory()
	require.NoError(t, EnsureSchema(ctx, s))
	v, ok, _ := s.Get(ctx, KeySchemaVersion)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, EnsureSchema(ctx, s))

	require.NoError(t, s.Set(ctx, KeySchemaVersion, "99"))
	err := EnsureSchema(ctx, s)
	assert.True(t, errors.Is(err, ErrUnsupportedSchema))

	require.NoError(t, s.Set(ctx, KeySchemaVersion, "garbage"))
	assert.ErrorIs(t, EnsureSchema(ctx, s), ErrUnsupportedSchema)
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())
	_, _, err := s.Get(context.Background(), KeyUser)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), KeyUser, "x"), ErrClosed)
}

func TestRedisKeyPrefix(t *testing.T) {
	r := &Redis{prefix: "bw"}
	assert.Equal(t, "bw:bw:user", r.key(KeyUser))
	r.prefix = ""
	assert.Equal(t, KeyUser, r.key(KeyUser))
}
