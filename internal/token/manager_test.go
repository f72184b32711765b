package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/csutihu/stlaundry/internal/config"
)

func newTestManager(t *testing.T, tokenURL string, seed *State) (*Manager, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "st_tokens.json"))
	if seed != nil {
		require.NoError(t, store.Save(*seed))
	}
	cfg := config.SmartThingsConfig{
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
	return NewManager(cfg, store, time.Second, zerolog.Nop()), store
}

func TestAccessTokenAbsentBeforeLoad(t *testing.T) {
	mgr, _ := newTestManager(t, "http://unused", nil)
	_, ok := mgr.AccessToken()
	require.False(t, ok)
}

func TestLoadMissingStore(t *testing.T) {
	mgr, _ := newTestManager(t, "http://unused", nil)
	require.ErrorIs(t, mgr.Load(), ErrNotFound)
}

func TestLoadAndAccessToken(t *testing.T) {
	seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(time.Hour)}
	mgr, _ := newTestManager(t, "http://unused", seed)
	require.NoError(t, mgr.Load())

	tok, ok := mgr.AccessToken()
	require.True(t, ok)
	require.Equal(t, "access-1", tok)
}

func TestAccessTokenExpired(t *testing.T) {
	seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(-time.Minute)}
	mgr, _ := newTestManager(t, "http://unused", seed)
	require.NoError(t, mgr.Load())

	_, ok := mgr.AccessToken()
	require.False(t, ok)
}

func TestInvalidateDiscardsToken(t *testing.T) {
	seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1"}
	mgr, _ := newTestManager(t, "http://unused", seed)
	require.NoError(t, mgr.Load())

	mgr.Invalidate()
	_, ok := mgr.AccessToken()
	require.False(t, ok)
}

func TestRefreshUpdatesAndPersists(t *testing.T) {
	var gotForm struct {
		grant, refresh, clientID string
		basicUser, basicPass     string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm.grant = r.PostForm.Get("grant_type")
		gotForm.refresh = r.PostForm.Get("refresh_token")
		gotForm.clientID = r.PostForm.Get("client_id")
		gotForm.basicUser, gotForm.basicPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-2","refresh_token":"refresh-2","expires_in":86400,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1"}
	mgr, store := newTestManager(t, srv.URL, seed)
	require.NoError(t, mgr.Load())
	mgr.Invalidate()

	require.NoError(t, mgr.Refresh(context.Background()))

	require.Equal(t, "refresh_token", gotForm.grant)
	require.Equal(t, "refresh-1", gotForm.refresh)
	require.Equal(t, "client-id", gotForm.clientID)
	require.Equal(t, "client-id", gotForm.basicUser)
	require.Equal(t, "client-secret", gotForm.basicPass)

	tok, ok := mgr.AccessToken()
	require.True(t, ok, "refresh must clear invalidation")
	require.Equal(t, "access-2", tok)

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "access-2", persisted.AccessToken)
	require.Equal(t, "refresh-2", persisted.RefreshToken)
	require.False(t, persisted.ExpiresAt.IsZero())
}

func TestRefreshKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"access-2","expires_in":3600}`))
	}))
	defer srv.Close()

	seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1"}
	mgr, store := newTestManager(t, srv.URL, seed)
	require.NoError(t, mgr.Load())
	require.NoError(t, mgr.Refresh(context.Background()))

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-1", persisted.RefreshToken)
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"http 500":  func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		"http 400":  func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) },
		"bad json":  func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("{oops")) },
		"no access": func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(`{"expires_in":3600}`)) },
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1"}
			mgr, store := newTestManager(t, srv.URL, seed)
			require.NoError(t, mgr.Load())

			require.Error(t, mgr.Refresh(context.Background()))

			tok, ok := mgr.AccessToken()
			require.True(t, ok)
			require.Equal(t, "access-1", tok)

			persisted, err := store.Load()
			require.NoError(t, err)
			require.Equal(t, "access-1", persisted.AccessToken)
			require.Equal(t, "refresh-1", persisted.RefreshToken)
		})
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	seed := &State{AccessToken: "access-1"}
	mgr, _ := newTestManager(t, "http://unused", seed)
	require.NoError(t, mgr.Load())
	require.Error(t, mgr.Refresh(context.Background()))
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	var calls atomic.Int64
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		close(entered)
		<-release
		w.Write([]byte(`{"access_token":"access-2","refresh_token":"refresh-2","expires_in":3600}`))
	}))
	defer srv.Close()

	seed := &State{AccessToken: "access-1", RefreshToken: "refresh-1"}
	mgr, _ := newTestManager(t, srv.URL, seed)
	require.NoError(t, mgr.Load())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, mgr.Refresh(context.Background()))
	}()
	<-entered
	go func() {
		defer wg.Done()
		require.NoError(t, mgr.Refresh(context.Background()))
	}()
	// Give the second caller time to observe the pre-refresh generation and
	// queue behind the in-flight exchange before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "concurrent 401s must coalesce into one refresh")
}
