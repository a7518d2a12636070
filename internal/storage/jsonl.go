package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"poolSync/internal/statespace"
)

// JsonlChangeLog appends change sets to a JSONL file, one block's changes
// per line.
type JsonlChangeLog struct {
	path string
	mu   sync.Mutex
}

func NewJsonlChangeLog(path string) *JsonlChangeLog {
	return &JsonlChangeLog{path: path}
}

// PutChangeSet appends one change set as a JSON line.
func (s *JsonlChangeLog) PutChangeSet(cs statespace.ChangeSet) error {
	if len(cs.Changes) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal change set: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write change set: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
