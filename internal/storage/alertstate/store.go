package alertstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
)

const FileName = "alert_state.json"

// Store persists alert cooldowns so a restart does not re-fire every alert.
type Store struct {
	path string
}

// NewStore creates an alert state store in dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create alert state dir")
	}

	return &Store{path: filepath.Join(dir, FileName)}, nil
}

type storedState struct {
	LastFired map[string]time.Time `json:"last_fired"`
	SavedAt   time.Time            `json:"saved_at"`
}

// Load reads the state from disk. A missing or empty file yields an empty state.
func (s *Store) Load() (domain.AlertState, error) {
	state := domain.NewAlertState()
	if s == nil || s.path == "" {
		return state, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}

		return state, errors.Wrap(err, "read alert state")
	}

	if len(payload) == 0 {
		return state, nil
	}

	var stored storedState
	if err := json.Unmarshal(payload, &stored); err != nil {
		return state, errors.Wrap(err, "decode alert state")
	}

	for k, v := range stored.LastFired {
		state.LastFired[k] = v
	}

	return state, nil
}

// Save writes the state to disk atomically via temp file.
func (s *Store) Save(state domain.AlertState) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(storedState{LastFired: state.LastFired, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode alert state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write alert state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist alert state")
	}

	return nil
}
