package token

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "st_tokens.json")
	store := NewFileStore(path)

	state := State{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(state))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, state.AccessToken, loaded.AccessToken)
	require.Equal(t, state.RefreshToken, loaded.RefreshToken)
	require.True(t, state.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	_, err := store.Load()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "st_tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "st_tokens.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(State{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.Save(State{AccessToken: "a2", RefreshToken: "r2"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "a2", loaded.AccessToken)
	require.Equal(t, "r2", loaded.RefreshToken)
}

func TestStateExpired(t *testing.T) {
	now := time.Now()
	require.False(t, State{}.Expired(now), "zero expiry must not expire")
	require.False(t, State{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	require.True(t, State{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
	require.True(t, State{ExpiresAt: now}.Expired(now))
}
