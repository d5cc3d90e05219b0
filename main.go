package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/starknet/codescan/cmd"
	"github.com/starknet/codescan/internal/api"
	"github.com/starknet/codescan/internal/camera/v4l2cam"
	"github.com/starknet/codescan/internal/config"
	"github.com/starknet/codescan/internal/devices"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/led"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/internal/metrics/exporters"
	"github.com/starknet/codescan/internal/photo"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/scanner"
	"github.com/starknet/codescan/internal/stream"
	"github.com/starknet/codescan/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Preferences
	PrefsFile string `help:"Preferences file (remembered camera)" default:"prefs.toml" toml:"prefs.file" env:"PREFS_FILE"`

	// Photo fallback
	PhotoMaxBytes int64 `help:"Largest accepted photo upload in bytes" default:"33554432" toml:"photo.max_bytes" env:"PHOTO_MAX_BYTES"`

	// Features settings
	FeaturesLEDControl bool   `help:"Mirror scan state on a status LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLEDName    string `help:"Status LED under /sys/class/leds (empty detects the board)" default:"" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Metrics
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingScanner string `help:"Scan loop logging level" default:"info" toml:"logging.scanner" env:"LOGGING_SCANNER"`
	LoggingStream  string `help:"Camera stream logging level" default:"info" toml:"logging.stream" env:"LOGGING_STREAM"`
	LoggingDevices string `help:"Device enumeration logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingProbe   string `help:"Auto-probe logging level" default:"info" toml:"logging.probe" env:"LOGGING_PROBE"`
	LoggingDecode  string `help:"Decode engine logging level" default:"info" toml:"logging.decode" env:"LOGGING_DECODE"`
	LoggingPhoto   string `help:"Photo fallback logging level" default:"info" toml:"logging.photo" env:"LOGGING_PHOTO"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"scanner": opts.LoggingScanner,
				"stream":  opts.LoggingStream,
				"devices": opts.LoggingDevices,
				"probe":   opts.LoggingProbe,
				"decode":  opts.LoggingDecode,
				"photo":   opts.LoggingPhoto,
				"api":     opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		scannerCfg, cfgErr := config.LoadScannerConfig(opts.Config)
		if cfgErr != nil {
			logger.Warn("Using scanner defaults", "error", cfgErr)
		}

		engine, err := cmd.NewEngine(scannerCfg, logging.GetLogger("decode"))
		if err != nil {
			logger.Error("Failed to build decode engine", "error", err)
			os.Exit(1)
		}

		store, err := prefs.Open(opts.PrefsFile)
		if err != nil {
			logger.Warn("Failed to load preferences, selection will not persist", "error", err)
			store = prefs.NewMemory()
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		mediaDevices := v4l2cam.New()
		monitor := devices.NewMonitor(mediaDevices, eventBus)

		deps := scanner.Deps{
			Devices: mediaDevices,
			Streams: stream.NewManager(mediaDevices, stream.Options{Width: scannerCfg.Width, Height: scannerCfg.Height}),
			Engine:  engine,
			Prefs:   store,
			Bus:     eventBus,
		}

		// Initialize LED feedback if enabled
		var indicator *led.Indicator
		if opts.FeaturesLEDControl {
			ledLogger := logging.GetLogger("led")
			indicator = led.NewIndicator(led.New(ledLogger, opts.FeaturesLEDName), eventBus, ledLogger)
			deps.Haptics = indicator
		}

		controller := scanner.New(deps, scanner.OptionsFromConfig(scannerCfg))

		// Cadence, ROI and probe timing reload; the running session keeps its options.
		watcher := config.NewConfigWatcher(opts.Config, config.LoadScannerConfig, logging.GetLogger("config"))
		watcher.OnReload(func(cfg config.ScannerConfig) {
			controller.UpdateOptions(scanner.OptionsFromConfig(cfg))
			logger.Info("Scanner configuration reloaded", "interval", cfg.Interval())
		})

		apiOpts := &api.Options{
			AuthUsername:  opts.AuthUsername,
			AuthPassword:  opts.AuthPassword,
			Devices:       mediaDevices,
			Prefs:         store,
			Scanner:       controller,
			Photo:         photo.New(engine, eventBus),
			Bus:           eventBus,
			MaxPhotoBytes: opts.PhotoMaxBytes,
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}

		server := api.NewServer(apiOpts)

		monitorCtx, stopMonitor := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			logger.Info("Starting codescan", "version", version.Get().Short())

			if indicator != nil {
				indicator.Start()
			}

			go func() {
				if runErr := monitor.Run(monitorCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
					logger.Warn("Device monitor stopped", "error", runErr)
				}
			}()

			// Config watcher is non-fatal; without it changes need a restart.
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Release the camera after the API stops taking requests
			controller.Close()

			stopMonitor()
			_ = watcher.Stop()
			if indicator != nil {
				indicator.Stop()
			}
		})
	})

	root := cli.Root()
	root.Use = "codescan"
	root.Short = "Camera barcode scanner service"
	root.Version = version.Get().Short()

	root.AddCommand(
		cmd.CreateDevicesCmd(),
		cmd.CreateScanCmd(),
		cmd.CreateDecodeCmd(),
		versionCmd(),
	)

	// Run the CLI
	cli.Run()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			info := version.Get()
			w := c.OutOrStdout()
			fmt.Fprintf(w, "codescan %s\n", info.Version)
			fmt.Fprintf(w, "  commit:   %s\n", info.GitCommit)
			fmt.Fprintf(w, "  built:    %s\n", info.BuildDate)
			fmt.Fprintf(w, "  go:       %s\n", info.GoVersion)
			fmt.Fprintf(w, "  platform: %s\n", info.Platform)
		},
	}
}
