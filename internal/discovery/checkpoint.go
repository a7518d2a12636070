package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint records how far a factory's pool universe has been scanned,
// so discovery resumes incrementally instead of re-scanning from genesis.
type Checkpoint struct {
	Factory          common.Address `json:"factory"`
	Variant          string         `json:"variant"`
	LastScannedBlock uint64         `json:"last_scanned_block"`
	UpdatedAt        string         `json:"updated_at"`
}

// CheckpointStore persists per-factory scan progress.
type CheckpointStore interface {
	Load(factory common.Address) (Checkpoint, bool, error)
	Save(cp Checkpoint) error
}

// FileCheckpointStore keeps all factory checkpoints in a single JSON file,
// written atomically via a temp file rename.
type FileCheckpointStore struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

// NewFileCheckpointStore builds a FileCheckpointStore. A disabled store
// loads nothing and saves nothing.
func NewFileCheckpointStore(path string, enabled bool) *FileCheckpointStore {
	return &FileCheckpointStore{path: path, enabled: enabled}
}

func (s *FileCheckpointStore) Load(factory common.Address) (Checkpoint, bool, error) {
	if !s.enabled {
		return Checkpoint{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return Checkpoint{}, false, err
	}
	cp, ok := all[factory.Hex()]
	return cp, ok, nil
}

func (s *FileCheckpointStore) Save(cp Checkpoint) error {
	if !s.enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	all[cp.Factory.Hex()] = cp

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal checkpoints: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}

func (s *FileCheckpointStore) read() (map[string]Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Checkpoint), nil
		}
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}

	all := make(map[string]Checkpoint)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse checkpoints: %w", err)
	}
	return all, nil
}
