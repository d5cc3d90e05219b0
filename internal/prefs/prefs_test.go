package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupTestStore(t *testing.T) (*TOMLStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "prefs.toml")
	return NewTOML(path), path
}

func TestNewTOMLDefaultPath(t *testing.T) {
	if s := NewTOML(""); s.path != "prefs.toml" {
		t.Errorf("default path = %q", s.path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := setupTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if _, ok := s.Get(KeyPreferredDevice); ok {
		t.Error("empty store returned a value")
	}
}

func TestSetPersists(t *testing.T) {
	s, path := setupTestStore(t)
	if err := s.Set(KeyPreferredDevice, "usb-046d_C920-video-index0"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("prefs file not written: %v", err)
	}
	if !strings.Contains(string(data), "scannerDeviceId") {
		t.Errorf("file missing key:\n%s", data)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v, ok := reopened.Get(KeyPreferredDevice); !ok || v != "usb-046d_C920-video-index0" {
		t.Errorf("reloaded value = %q, %v", v, ok)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestDelete(t *testing.T) {
	s, path := setupTestStore(t)
	if err := s.Set(KeyPreferredDevice, "cam"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(KeyPreferredDevice); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("absent"); err != nil {
		t.Errorf("deleting an absent key: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reopened.Get(KeyPreferredDevice); ok {
		t.Error("deleted key came back after reload")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	s, path := setupTestStore(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("values = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	if err := m.Set(KeyPreferredDevice, "a"); err != nil {
		t.Fatal(err)
	}
	if v, ok := m.Get(KeyPreferredDevice); !ok || v != "a" {
		t.Errorf("Get = %q, %v", v, ok)
	}
	if m.Writes() != 1 {
		t.Errorf("Writes = %d", m.Writes())
	}
	_ = m.Delete(KeyPreferredDevice)
	if _, ok := m.Get(KeyPreferredDevice); ok {
		t.Error("value survived Delete")
	}
}
