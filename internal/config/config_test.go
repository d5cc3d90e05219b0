package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Port       int      `toml:"server.port" env:"PORT"`
	IntervalMS int      `toml:"scanner.interval_ms" env:"SCANNER_INTERVAL_MS"`
	ROITop     float64  `toml:"scanner.roi_top" env:"SCANNER_ROI_TOP"`
	EnableQR   bool     `toml:"scanner.enable_qr" env:"SCANNER_ENABLE_QR"`
	Backends   []string `toml:"scanner.backends" env:"SCANNER_BACKENDS"`
	PrefsFile  string   `toml:"prefs.file" env:"PREFS_FILE" name:"prefs"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const sampleConfig = `
[server]
port = 9090

[scanner]
interval_ms = 200
roi_top = 0.25
enable_qr = true
backends = ["zxing", "native"]

[prefs]
file = "/var/lib/codescan/prefs.toml"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != 9090 {
		t.Errorf("Port = %d, want 9090", opts.Port)
	}
	if opts.IntervalMS != 200 {
		t.Errorf("IntervalMS = %d, want 200", opts.IntervalMS)
	}
	if opts.ROITop != 0.25 {
		t.Errorf("ROITop = %v, want 0.25", opts.ROITop)
	}
	if !opts.EnableQR {
		t.Error("EnableQR = false, want true")
	}
	if want := []string{"zxing", "native"}; !reflect.DeepEqual(opts.Backends, want) {
		t.Errorf("Backends = %v, want %v", opts.Backends, want)
	}
	if opts.PrefsFile != "/var/lib/codescan/prefs.toml" {
		t.Errorf("PrefsFile = %q", opts.PrefsFile)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("CODESCAN_PORT", "7000")
	t.Setenv("CODESCAN_SCANNER_ROI_TOP", "0.4")
	t.Setenv("CODESCAN_SCANNER_BACKENDS", "native, zxing-lowlight")

	opts := &testOptions{Config: writeConfig(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != 7000 {
		t.Errorf("Port = %d, want env value 7000", opts.Port)
	}
	if opts.ROITop != 0.4 {
		t.Errorf("ROITop = %v, want 0.4", opts.ROITop)
	}
	if want := []string{"native", "zxing-lowlight"}; !reflect.DeepEqual(opts.Backends, want) {
		t.Errorf("Backends = %v, want %v", opts.Backends, want)
	}
	if opts.IntervalMS != 200 {
		t.Errorf("IntervalMS = %d, want TOML value 200", opts.IntervalMS)
	}
}

func TestLoadConfigCLIFlagWins(t *testing.T) {
	t.Setenv("CODESCAN_PORT", "7000")

	opts := &testOptions{Config: writeConfig(t, sampleConfig)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&opts.Port, "port", 8090, "")
	cmd.Flags().StringVar(&opts.PrefsFile, "prefs", "", "")
	if err := cmd.Flags().Set("port", "8181"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("prefs", "cli.toml"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != 8181 {
		t.Errorf("Port = %d, want CLI value 8181", opts.Port)
	}
	if opts.PrefsFile != "cli.toml" {
		t.Errorf("PrefsFile = %q, want CLI value", opts.PrefsFile)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, want default kept", opts.Port)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, "[server\nport = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Fatal("expected error for non-pointer options")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"LoggingLevel":      "logging-level",
		"ScannerIntervalMS": "scanner-interval-ms",
		"ROITop":            "roi-top",
		"EnableQR":          "enable-qr",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"scanner": map[string]any{"interval_ms": int64(90)},
		"flat":    "x",
	}
	if got := getNestedValue(data, "scanner.interval_ms"); got != int64(90) {
		t.Errorf("nested = %v", got)
	}
	if got := getNestedValue(data, "flat"); got != "x" {
		t.Errorf("flat = %v", got)
	}
	if got := getNestedValue(data, "flat.deeper"); got != nil {
		t.Errorf("expected nil through a non-table, got %v", got)
	}
}

func TestLoadLoggingModuleLevels(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"

[logging.modules]
decode = "debug"
`)
	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("got level=%q format=%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["decode"] != "debug" {
		t.Errorf("decode module level = %q, want debug", cfg.Modules["decode"])
	}

	defaults := LoadLoggingConfig("")
	if defaults.Level != "info" || defaults.Format != "text" {
		t.Errorf("defaults = %+v", defaults)
	}
}

func TestLoadScannerConfig(t *testing.T) {
	path := writeConfig(t, `
[scanner]
interval_ms = 10
enable_qr = true
probe_after_ms = 0
`)
	cfg, err := LoadScannerConfig(path)
	if err != nil {
		t.Fatalf("LoadScannerConfig failed: %v", err)
	}

	if got := cfg.Interval().Milliseconds(); got != MinIntervalMS {
		t.Errorf("Interval = %dms, want floor %dms", got, MinIntervalMS)
	}
	if !cfg.EnableQR {
		t.Error("EnableQR not loaded")
	}
	if cfg.ProbeAfter() != 0 {
		t.Errorf("ProbeAfter = %v, want disabled", cfg.ProbeAfter())
	}
	if cfg.ROITop != 0.35 || cfg.ROILeft != 0.10 {
		t.Errorf("ROI defaults not kept: %+v", cfg)
	}
	if len(cfg.Backends) != 3 {
		t.Errorf("Backends = %v, want defaults", cfg.Backends)
	}
}

func TestScannerDefaults(t *testing.T) {
	cfg := DefaultScanner()
	if got := cfg.Interval().Milliseconds(); got != DefaultIntervalMS {
		t.Errorf("Interval = %dms, want %d", got, DefaultIntervalMS)
	}
	if got := (ScannerConfig{}).Interval().Milliseconds(); got != DefaultIntervalMS {
		t.Errorf("zero config interval = %dms, want %d", got, DefaultIntervalMS)
	}
	if cfg.TrialWindow().Seconds() != 3 {
		t.Errorf("TrialWindow = %v", cfg.TrialWindow())
	}
}
