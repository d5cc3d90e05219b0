// Package prefs stores the few values the scanner remembers across
// sessions, principally the preferred camera device id.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// KeyPreferredDevice holds the last explicitly chosen or successfully
// auto-picked camera device id.
const KeyPreferredDevice = "scannerDeviceId"

// Store is a string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// file is the on-disk layout.
type file struct {
	Version int               `toml:"version"`
	Values  map[string]string `toml:"values"`
}

// TOMLStore is a Store persisted as a TOML file.
type TOMLStore struct {
	path string
	mu   sync.RWMutex
	data file
}

// NewTOML creates a store persisted at path. Call Load to read existing values.
func NewTOML(path string) *TOMLStore {
	if path == "" {
		path = "prefs.toml"
	}
	return &TOMLStore{
		path: path,
		data: file{Version: 1, Values: make(map[string]string)},
	}
}

// Open creates a TOML store at path and loads it.
func Open(path string) (Store, error) {
	s := NewTOML(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the file. A missing file leaves the store empty.
func (s *TOMLStore) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read prefs: %w", err)
	}

	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse prefs: %w", err)
	}
	if f.Values == nil {
		f.Values = make(map[string]string)
	}
	if f.Version == 0 {
		f.Version = 1
	}

	s.mu.Lock()
	s.data = f
	s.mu.Unlock()
	return nil
}

func (s *TOMLStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data.Values[key]
	return v, ok
}

func (s *TOMLStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.data.Values[key]; ok && old == value {
		return nil
	}
	s.data.Values[key] = value
	return s.save()
}

func (s *TOMLStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Values[key]; !ok {
		return nil
	}
	delete(s.data.Values, key)
	return s.save()
}

// save writes through a temp file so a crash never leaves a torn file.
// Callers hold s.mu.
func (s *TOMLStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prefs directory: %w", err)
	}

	data, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace prefs: %w", err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.writes++
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Writes counts Set calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
