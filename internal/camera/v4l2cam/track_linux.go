//go:build linux

package v4l2cam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/pkg/linuxav/v4l2"
)

// maxReadFailures ends a track whose node still exists but keeps failing.
const maxReadFailures = 25

type track struct {
	id       string
	node     v4l2.DeviceInfo
	controls controlSet
	logger   *slog.Logger

	mu       sync.Mutex // guards capture, settings, failures, ended
	capture  *gocv.VideoCapture
	settings camera.Settings
	failures int
	ended    bool
}

func (t *track) ID() string       { return t.id }
func (t *track) DeviceID() string { return t.node.DeviceID }
func (t *track) Label() string    { return t.node.DeviceName }

func (t *track) Capabilities() camera.Capabilities {
	return t.controls.capabilities()
}

func (t *track) Settings() camera.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

func (t *track) ApplyConstraints(ctx context.Context, adv camera.Advanced) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	writes, err := t.controls.writes(adv)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return camera.ErrTrackEnded
	}
	for _, w := range writes {
		if err := v4l2.SetControl(t.node.DevicePath, controlIDs[w.ctrl], w.value); err != nil {
			return fmt.Errorf("set %s: %w", w.ctrl, err)
		}
		t.logger.Debug("Control set", "control", w.ctrl.String(), "value", w.value)
	}

	if adv.Zoom != nil {
		t.settings.Zoom = t.controls.capabilities().Zoom.Clamp(*adv.Zoom)
	}
	if adv.FocusMode != "" {
		t.settings.FocusMode = adv.FocusMode
	}
	if adv.WhiteBalanceMode != "" {
		t.settings.WhiteBalanceMode = adv.WhiteBalanceMode
	}
	if adv.Torch != nil {
		t.settings.Torch = *adv.Torch
	}
	return nil
}

func (t *track) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return nil, camera.ErrTrackEnded
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if !t.capture.Read(&mat) || mat.Empty() {
		t.failures++
		if _, err := os.Stat(t.node.DevicePath); errors.Is(err, fs.ErrNotExist) || t.failures >= maxReadFailures {
			t.endLocked()
			return nil, camera.ErrTrackEnded
		}
		return nil, fmt.Errorf("read %s: %w", t.node.DevicePath, camera.ErrDeviceUnavailable)
	}
	t.failures = 0

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (t *track) ReadyState() camera.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return camera.Ended
	}
	return camera.Live
}

// Stop turns the torch off and releases the node. It waits for an in-flight
// read and is safe to call more than once.
func (t *track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	if t.settings.Torch {
		if err := v4l2.SetControl(t.node.DevicePath, v4l2.CIDFlashLEDMode, flashNone); err != nil {
			t.logger.Debug("Failed to turn torch off", "error", err)
		}
	}
	t.endLocked()
}

func (t *track) endLocked() {
	t.ended = true
	if err := t.capture.Close(); err != nil {
		t.logger.Warn("Failed to close capture", "error", err)
	}
	t.logger.Info("Camera released")
}
