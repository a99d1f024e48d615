package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// State is the locally persisted license state
type State struct {
	ClientID     string         `json:"clientId"`
	CaptureCount int            `json:"captureCount"`
	LicenseCache *CachedVerdict `json:"licenseCache"`
}

// NewClientID returns a fresh installation ID of the form cs_<16 hex>
func NewClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "cs_" + id[:16]
}

// StateStore keeps State in a JSON file
type StateStore struct {
	path string
}

// NewStateStore creates a store backed by path
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// DefaultStatePath returns ~/.config/circle-snip/state.json
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./circle-snip-state.json"
	}
	return filepath.Join(home, ".config", "circle-snip", "state.json")
}

// Load reads the state, creating and persisting a new client ID on first use
func (s *StateStore) Load() (*State, error) {
	var st State
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("failed to parse state file: %w", err)
		}
	}

	if st.ClientID == "" {
		st.ClientID = NewClientID()
		if err := s.Save(&st); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// Save writes the state atomically
func (s *StateStore) Save(st *State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
