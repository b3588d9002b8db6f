package risk

import (
	"os"
	"path/filepath"

	"quantumedge-supervisor/internal/fsatomic"
)

const stateFileName = "risk_state.json"

// Store persists the risk snapshot under <dir>/risk_state.json.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir (typically runtime/supervisor).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, stateFileName)
}

// Load reads the persisted snapshot. A missing file returns a fresh snapshot
// for tradingDay; a snapshot persisted for an older day is reset.
func (s *Store) Load(tradingDay string) (StateSnapshot, error) {
	var snap StateSnapshot
	err := fsatomic.ReadJSON(s.path(), &snap)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSnapshot(tradingDay), nil
		}
		return NewSnapshot(tradingDay), err
	}
	if snap.TradingDay != tradingDay {
		return NewSnapshot(tradingDay), nil
	}
	if snap.LLMRiskMultiplier == 0 {
		snap.LLMRiskMultiplier = 1.0
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (s *Store) Save(snap StateSnapshot) error {
	return fsatomic.WriteJSON(s.path(), snap)
}

// Reset removes the persisted snapshot.
func (s *Store) Reset() error {
	err := os.Remove(s.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
