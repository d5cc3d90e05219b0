package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/starknet/codescan/internal/camera/v4l2cam"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/scanner"
	"github.com/starknet/codescan/internal/stream"
)

// errScanTimeout is returned when no code was read before --timeout.
var errScanTimeout = errors.New("timed out waiting for a code")

// CreateScanCmd creates the scan command.
func CreateScanCmd() *cobra.Command {
	var flags commonFlags
	var deviceID string
	var probe bool
	var timeout time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one code from a camera",
		Long: `Opens a camera, decodes frames until a barcode is read and prints it. ` +
			`With --probe every camera is tried in turn and the first one that reads is remembered.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			cfg, logger, err := flags.setup("scanner")
			if err != nil {
				logger.Error("Failed to load configuration", "error", err)
				os.Exit(1)
			}

			engine, err := NewEngine(cfg, logger)
			if err != nil {
				logger.Error("Failed to build decode engine", "error", err)
				os.Exit(1)
			}

			store, err := prefs.Open(flags.prefsFile)
			if err != nil {
				logger.Warn("Failed to load preferences, selection will not persist", "error", err)
				store = prefs.NewMemory()
			}

			md := v4l2cam.New()
			bus := events.New()
			if verbose {
				unsub := bus.Subscribe(func(ev events.ProbeAttemptEvent) {
					fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprintf("probe %s: %s", ev.DeviceID, ev.Outcome))
				})
				defer unsub()
			}

			ctrl := scanner.New(scanner.Deps{
				Devices: md,
				Streams: stream.NewManager(md, stream.Options{Width: cfg.Width, Height: cfg.Height}),
				Engine:  engine,
				Prefs:   store,
				Bus:     bus,
			}, scanner.OptionsFromConfig(cfg))
			defer ctrl.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res, err := scanOnce(ctx, ctrl, scanner.StartOptions{DeviceID: deviceID}, probe)
			if err != nil {
				fmt.Fprintln(os.Stderr, color.RedString("scan failed: %v", err))
				os.Exit(1)
			}
			printResult(os.Stdout, res)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Camera device ID (see 'codescan devices')")
	cmd.Flags().BoolVar(&probe, "probe", false, "Try every camera until one reads a code")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Give up after this long (0 waits until interrupted)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Report probe attempts on stderr")
	return cmd
}

// scanSource is the part of the controller a one-shot scan needs.
type scanSource interface {
	Start(ctx context.Context, so scanner.StartOptions) (*scanner.Session, error)
	Probe(ctx context.Context, so scanner.StartOptions) (*scanner.Session, error)
	Stop(ctx context.Context) error
}

// scanOnce runs a single session and waits for its code.
func scanOnce(ctx context.Context, src scanSource, so scanner.StartOptions, probe bool) (decode.Result, error) {
	start := src.Start
	if probe {
		start = src.Probe
	}
	session, err := start(ctx, so)
	if err != nil {
		return decode.Result{}, err
	}

	select {
	case res, ok := <-session.Result():
		if ok {
			return res, nil
		}
		if serr := session.Err(); serr != nil {
			return decode.Result{}, serr
		}
		return decode.Result{}, errors.New("scan stopped")
	case <-ctx.Done():
		_ = src.Stop(context.Background())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return decode.Result{}, errScanTimeout
		}
		return decode.Result{}, ctx.Err()
	}
}

func printResult(w io.Writer, res decode.Result) {
	fmt.Fprintln(w, res.Text)
	if res.Symbology != "" {
		fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprintf("%s via %s", res.Symbology, res.Backend))
	}
}
