// Package token owns the OAuth token lifecycle: persistence of the
// refresh/access token pair and refresh against the vendor token endpoint.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound indicates that no token state has been persisted yet.
var ErrNotFound = errors.New("token store: state file not found")

// State is the persisted token pair plus expiry metadata.
type State struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is past its expiry at the given
// instant. A zero expiry means the lifetime is unknown and the token is
// treated as still valid.
func (s State) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Store persists and loads token state. Implementations perform no network
// calls.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps the token state in a single JSON file, overwritten
// atomically on every save.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and parses the persisted state. A missing file yields
// ErrNotFound; a malformed file yields a parse error.
func (f *FileStore) Load() (State, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("read token state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("parse token state %s: %w", f.path, err)
	}
	return state, nil
}

// Save atomically overwrites the state file via a temp file rename. The file
// holds credentials and is written with owner-only permissions.
func (f *FileStore) Save(state State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token state: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".st_tokens-*.json")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace token state: %w", err)
	}
	return nil
}
