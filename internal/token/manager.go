package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/csutihu/stlaundry/internal/config"
)

// expirySkew shortens the reported token lifetime so a token is refreshed
// before the vendor actually rejects it.
const expirySkew = 60 * time.Second

// Manager caches the current token pair in memory, loads it lazily from a
// Store and refreshes it against the OAuth token endpoint. The cache is
// optimistic: a 401 observed by any caller invalidates it immediately.
type Manager struct {
	store      Store
	tokenURL   string
	clientID   string
	clientSecr string
	httpClient *http.Client
	logger     zerolog.Logger

	mu          sync.Mutex
	state       State
	loaded      bool
	invalidated bool
	refreshes   atomic.Uint64
}

// NewManager wires a Manager against the given store and OAuth settings.
func NewManager(cfg config.SmartThingsConfig, store Store, timeout time.Duration, logger zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Manager{
		store:      store,
		tokenURL:   cfg.TokenURL,
		clientID:   cfg.ClientID,
		clientSecr: cfg.ClientSecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "token_manager").Logger(),
	}
}

// Load reads persisted token state from the store. A missing or malformed
// store is reported to the caller; polling simply cannot succeed until tokens
// exist externally.
func (m *Manager) Load() error {
	state, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.state = state
	m.loaded = true
	m.invalidated = false
	m.mu.Unlock()
	return nil
}

// AccessToken returns the cached access token without any network call. The
// second return value is false when no token was ever loaded, the token has
// been invalidated by a 401, or it is past its expiry.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.invalidated || m.state.AccessToken == "" {
		return "", false
	}
	if m.state.Expired(time.Now()) {
		return "", false
	}
	return m.state.AccessToken, true
}

// Invalidate discards the cached access token, forcing the next caller
// through Refresh before reuse.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.invalidated = true
	m.mu.Unlock()
}

// tokenResponse is the token endpoint's success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Refresh exchanges the stored refresh token for a new token pair, persists
// the result and updates the in-memory cache. On any failure the previous
// state is left untouched.
//
// Refreshes are serialized; callers that queued up behind an in-flight
// refresh triggered by the same stale token return without a second network
// call.
func (m *Manager) Refresh(ctx context.Context) error {
	observed := m.refreshes.Load()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshes.Load() != observed {
		return nil
	}
	if m.state.RefreshToken == "" {
		return fmt.Errorf("refresh token: no refresh token available")
	}

	next, err := m.exchange(ctx, m.state.RefreshToken)
	if err != nil {
		return err
	}
	if err := m.store.Save(next); err != nil {
		return fmt.Errorf("persist refreshed tokens: %w", err)
	}
	m.state = next
	m.loaded = true
	m.invalidated = false
	m.refreshes.Add(1)
	m.logger.Info().Time("expires_at", next.ExpiresAt).Msg("access token refreshed")
	return nil
}

func (m *Manager) exchange(ctx context.Context, refreshToken string) (State, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return State{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(m.clientID, m.clientSecr)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return State{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return State{}, fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return State{}, fmt.Errorf("parse token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return State{}, fmt.Errorf("token response missing access_token")
	}

	next := State{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
	}
	if next.RefreshToken == "" {
		// Some tenants do not rotate the refresh token on every exchange.
		next.RefreshToken = refreshToken
	}
	if parsed.ExpiresIn > 0 {
		lifetime := time.Duration(parsed.ExpiresIn) * time.Second
		if lifetime > expirySkew {
			lifetime -= expirySkew
		}
		next.ExpiresAt = time.Now().Add(lifetime)
	}
	return next, nil
}
