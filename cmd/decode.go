package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/photo"
)

// ExitNotFound is the decode command's exit status when the image holds no
// readable code.
const ExitNotFound = 2

// CreateDecodeCmd creates the decode command.
func CreateDecodeCmd() *cobra.Command {
	var flags commonFlags
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "decode <image>",
		Short: "Decode a barcode from a photo",
		Long: `Reads a still image (png, jpeg, gif, bmp, webp or tiff), applies its EXIF ` +
			`orientation and decodes the whole frame. Exits with status 2 when no code is found.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			cfg, logger, err := flags.setup("photo")
			if err != nil {
				logger.Error("Failed to load configuration", "error", err)
				os.Exit(1)
			}

			engine, err := NewEngine(cfg, logger)
			if err != nil {
				logger.Error("Failed to build decode engine", "error", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			res, err := photo.New(engine, nil).DecodeFile(ctx, args[0])
			switch {
			case err == nil:
				printResult(os.Stdout, res)
			case errors.Is(err, decode.ErrNotFound):
				fmt.Fprintln(os.Stderr, color.YellowString("no code found in %s", args[0]))
				os.Exit(ExitNotFound)
			default:
				fmt.Fprintln(os.Stderr, color.RedString("decode failed: %v", err))
				os.Exit(1)
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Give up after this long")
	return cmd
}
