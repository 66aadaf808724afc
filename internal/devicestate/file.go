package devicestate

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a FileMemory.
type fileFormat struct {
	// LastSeen maps board id to the last celebrated count.
	LastSeen map[string]int `yaml:"last_seen"`
}

// FileMemory persists celebration memory in a YAML file on the device. Every
// write rewrites the file through a temporary file and rename.
type FileMemory struct {
	path string

	mu       sync.Mutex
	lastSeen map[string]int
}

// OpenFile loads the memory at path. A missing file is an empty memory.
// Unknown keys or malformed YAML are rejected.
func OpenFile(path string) (*FileMemory, error) {
	m := &FileMemory{path: path, lastSeen: make(map[string]int)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read celebration memory: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}

	var f fileFormat
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse celebration memory: %w", err)
	}
	for id, n := range f.LastSeen {
		if n < 0 {
			return nil, fmt.Errorf("invalid celebration memory: board %s has negative count %d", id, n)
		}
		m.lastSeen[id] = n
	}
	return m, nil
}

func (m *FileMemory) LastSeen(boardID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.lastSeen[boardID]
	return n, ok, nil
}

func (m *FileMemory) SetLastSeen(boardID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.lastSeen[boardID]
	m.lastSeen[boardID] = count
	if err := m.flush(); err != nil {
		if had {
			m.lastSeen[boardID] = prev
		} else {
			delete(m.lastSeen, boardID)
		}
		return err
	}
	return nil
}

func (m *FileMemory) Forget(boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.lastSeen[boardID]
	if !had {
		return nil
	}
	delete(m.lastSeen, boardID)
	if err := m.flush(); err != nil {
		m.lastSeen[boardID] = prev
		return err
	}
	return nil
}

// flush must be called with m.mu held.
func (m *FileMemory) flush() error {
	data, err := yaml.Marshal(fileFormat{LastSeen: m.lastSeen})
	if err != nil {
		return fmt.Errorf("failed to encode celebration memory: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".celebrations-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write celebration memory: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write celebration memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write celebration memory: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write celebration memory: %w", err)
	}
	return nil
}
