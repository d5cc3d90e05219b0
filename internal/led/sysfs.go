package led

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using the Linux sysfs LED interface.
type sysfs struct {
	root string
	leds map[string]string // LED name -> sysfs directory
}

func newSysfs(root string, leds map[string]string) *sysfs {
	if root == "" {
		root = sysfsLEDPath
	}
	return &sysfs{root: root, leds: leds}
}

func (s *sysfs) Set(name string, on bool, pattern string) error {
	dir, ok := s.leds[name]
	if !ok {
		return fmt.Errorf("LED %q not supported on this board", name)
	}
	ledPath := filepath.Join(s.root, dir)
	if _, err := os.Stat(ledPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("LED %q not found at %s", name, ledPath)
	}

	if pattern != "" {
		trigger := "none"
		if pattern == PatternBlink {
			trigger = "heartbeat"
		}
		if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
		if pattern == PatternBlink {
			return nil
		}
	}

	brightness := "0"
	if on {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	names := make([]string, 0, len(s.leds))
	for name := range s.leds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
