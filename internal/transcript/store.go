package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore persists transcript fragments as append-only JSON lines in a
// local file, so parents can review past conversations. Safe for concurrent
// use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the file at path. The file is
// created on first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append writes one fragment as a JSON line.
func (s *FileStore) Append(f Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("transcript: open store: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transcript: marshal fragment: %w", err)
	}
	line = append(line, '\n')

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("transcript: write fragment: %w", err)
	}
	return nil
}

// ReadAll returns every stored fragment in append order. A missing file is
// an empty history, not an error. Unparseable lines are skipped.
func (s *FileStore) ReadAll() ([]Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: open store: %w", err)
	}
	defer file.Close()

	var out []Fragment
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var f Fragment
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("transcript: read store: %w", err)
	}
	return out, nil
}
