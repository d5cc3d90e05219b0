// Package cmd holds the codescan subcommands that run without the HTTP server.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/starknet/codescan/internal/config"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/internal/metrics"
)

// NewEngine builds the decode engine described by the [scanner] table.
// Backends that are not installed are logged and skipped.
func NewEngine(cfg config.ScannerConfig, logger *slog.Logger) (*decode.Engine, error) {
	allow := decode.AllowList(cfg.EnableQR)
	backends, skipped, err := decode.Build(cfg.Backends, allow)
	if err != nil {
		return nil, err
	}
	for _, name := range skipped {
		logger.Warn("Decode backend not available, skipping", "backend", name)
	}
	if len(backends) == 0 {
		return nil, errors.New("no decode backend available")
	}
	return decode.NewEngine(backends, allow, decode.WithObserver(metrics.ObserveDecode)), nil
}

// commonFlags are shared by the standalone subcommands.
type commonFlags struct {
	configFile string
	prefsFile  string
	logLevel   string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&f.prefsFile, "prefs", "prefs.toml", "Path to the preferences file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "Logging level (debug, info, warn, error)")
}

// setup initializes logging and loads the scanner table. A missing config
// file yields the defaults.
func (f *commonFlags) setup(module string) (config.ScannerConfig, *slog.Logger, error) {
	logging.Initialize(logging.Config{Level: f.logLevel, Format: "text"})
	logger := logging.GetLogger(module)

	cfg, err := config.LoadScannerConfig(f.configFile)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("No config file, using scanner defaults", "config", f.configFile)
		err = nil
	default:
		return cfg, logger, fmt.Errorf("failed to load scanner config: %w", err)
	}
	return cfg, logger, err
}
