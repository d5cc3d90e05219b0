package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/camera/v4l2cam"
	"github.com/starknet/codescan/internal/devices"
	"github.com/starknet/codescan/internal/prefs"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras in scan order",
		Long: `Enumerates the video input devices, ranks them by how likely they are to be ` +
			`the primary rear camera, and marks the default and the remembered device.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			_, logger, err := flags.setup("devices")
			if err != nil {
				logger.Error("Failed to load configuration", "error", err)
				os.Exit(1)
			}

			store, err := prefs.Open(flags.prefsFile)
			if err != nil {
				logger.Warn("Failed to load preferences", "error", err)
				store = prefs.NewMemory()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := listDevices(ctx, os.Stdout, v4l2cam.New(), store); err != nil {
				logger.Error("Failed to enumerate cameras", "error", err)
				os.Exit(1)
			}
		},
	}
	flags.register(cmd)
	return cmd
}

func listDevices(ctx context.Context, w io.Writer, md camera.MediaDevices, store prefs.Store) error {
	list, err := devices.Enumerate(ctx, md)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, color.YellowString("no cameras found"))
		return nil
	}

	saved, _ := store.Get(prefs.KeyPreferredDevice)
	def, fromPref, _ := devices.ResolvePreferred(list, saved)

	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	for i, d := range list {
		label := d.Label
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Fprintf(w, "%2d. %s %s", i+1, bold.Sprint(label), dim.Sprintf("[%s] score=%d", d.DeviceID, d.Score))
		if d.DeviceID == def.DeviceID {
			fmt.Fprint(w, " ", color.GreenString("default"))
		}
		if fromPref && d.DeviceID == saved {
			fmt.Fprint(w, " ", color.CyanString("preferred"))
		}
		fmt.Fprintln(w)
	}
	if saved != "" && !fromPref {
		fmt.Fprintln(w, color.YellowString("remembered camera %s is not connected", saved))
	}
	return nil
}
