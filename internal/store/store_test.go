package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cache.Close()) })
	return cache
}

func TestSessionRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	_, _, ok := cache.LoadSession()
	require.False(t, ok)

	require.NoError(t, cache.SaveSession("alice", "token-1"))
	userID, token, ok := cache.LoadSession()
	require.True(t, ok)
	require.Equal(t, "alice", userID)
	require.Equal(t, "token-1", token)
}

// Saving a second session replaces the first; one row at most.
func TestSessionReplaced(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.SaveSession("alice", "token-1"))
	require.NoError(t, cache.SaveSession("bob", "token-2"))

	userID, token, ok := cache.LoadSession()
	require.True(t, ok)
	require.Equal(t, "bob", userID)
	require.Equal(t, "token-2", token)
}

func TestClearSession(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.SaveSession("alice", "token-1"))
	require.NoError(t, cache.ClearSession())

	_, _, ok := cache.LoadSession()
	require.False(t, ok)

	require.NoError(t, cache.ClearSession())
}

func TestPushTokenRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	_, _, _, ok := cache.LoadPushToken()
	require.False(t, ok)

	require.NoError(t, cache.SavePushToken(1, "tok-1", true))
	tokenType, token, exclusive, ok := cache.LoadPushToken()
	require.True(t, ok)
	require.Equal(t, 1, tokenType)
	require.Equal(t, "tok-1", token)
	require.True(t, exclusive)

	require.NoError(t, cache.SavePushToken(2, "tok-2", false))
	tokenType, token, exclusive, ok = cache.LoadPushToken()
	require.True(t, ok)
	require.Equal(t, 2, tokenType)
	require.Equal(t, "tok-2", token)
	require.False(t, exclusive)

	require.NoError(t, cache.DeletePushTokens())
	_, _, _, ok = cache.LoadPushToken()
	require.False(t, ok)
}
