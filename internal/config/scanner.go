package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// MinIntervalMS is the floor for the per-frame decode cadence.
	MinIntervalMS = 50
	// DefaultIntervalMS is the decode cadence when none is configured.
	DefaultIntervalMS = 120
)

// ScannerConfig is the [scanner] table. It is reloaded at runtime; a reload
// applies to the next scan session.
type ScannerConfig struct {
	IntervalMS    int      `toml:"interval_ms" json:"interval_ms"`
	ROITop        float64  `toml:"roi_top" json:"roi_top"`
	ROIBottom     float64  `toml:"roi_bottom" json:"roi_bottom"`
	ROILeft       float64  `toml:"roi_left" json:"roi_left"`
	ROIRight      float64  `toml:"roi_right" json:"roi_right"`
	ProbeAfterMS  int      `toml:"probe_after_ms" json:"probe_after_ms"`
	TrialWindowMS int      `toml:"trial_window_ms" json:"trial_window_ms"`
	EnableQR      bool     `toml:"enable_qr" json:"enable_qr"`
	Backends      []string `toml:"backends" json:"backends"`
	Width         int      `toml:"width" json:"width"`
	Height        int      `toml:"height" json:"height"`
}

// DefaultScanner returns the scanner defaults: a 120ms cadence, a centered
// band covering 30% of the height and 80% of the width, and a probe hand-off
// after three seconds without a decode.
func DefaultScanner() ScannerConfig {
	return ScannerConfig{
		IntervalMS:    DefaultIntervalMS,
		ROITop:        0.35,
		ROIBottom:     0.35,
		ROILeft:       0.10,
		ROIRight:      0.10,
		ProbeAfterMS:  3000,
		TrialWindowMS: 3000,
		Backends:      []string{"native", "zxing", "zxing-lowlight"},
		Width:         1280,
		Height:        720,
	}
}

// Interval returns the decode cadence, never below MinIntervalMS.
func (c ScannerConfig) Interval() time.Duration {
	ms := c.IntervalMS
	if ms <= 0 {
		ms = DefaultIntervalMS
	}
	if ms < MinIntervalMS {
		ms = MinIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// ProbeAfter returns how long a session may run without a decode before
// handing off to auto-probe. Zero disables the hand-off.
func (c ScannerConfig) ProbeAfter() time.Duration {
	if c.ProbeAfterMS <= 0 {
		return 0
	}
	return time.Duration(c.ProbeAfterMS) * time.Millisecond
}

// TrialWindow returns the per-candidate auto-probe trial length.
func (c ScannerConfig) TrialWindow() time.Duration {
	if c.TrialWindowMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.TrialWindowMS) * time.Millisecond
}

// LoadScannerConfig reads the [scanner] table of path on top of the defaults.
func LoadScannerConfig(path string) (ScannerConfig, error) {
	cfg := DefaultScanner()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := struct {
		Scanner *ScannerConfig `toml:"scanner"`
	}{Scanner: &cfg}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return DefaultScanner(), fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
