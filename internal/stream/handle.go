package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/logging"
)

// Handle is an open stream and its capability snapshot. Capabilities and
// snapshot support are read once at open time and never re-probed.
type Handle struct {
	stream   camera.Stream
	track    camera.Track
	capturer camera.ImageCapturer
	caps     camera.Capabilities
	strategy Strategy
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	zoom   float64
	torch  bool
}

func newHandle(s camera.Stream, strategy Strategy) (*Handle, error) {
	tracks := s.VideoTracks()
	if len(tracks) == 0 {
		camera.StopAll(s)
		return nil, fmt.Errorf("stream %s has no video track: %w", s.ID(), camera.ErrDeviceUnavailable)
	}
	track := tracks[0]
	capturer, _ := track.(camera.ImageCapturer)
	settings := track.Settings()

	return &Handle{
		stream:   s,
		track:    track,
		capturer: capturer,
		caps:     track.Capabilities(),
		strategy: strategy,
		logger:   logging.GetLogger("stream").With("device_id", track.DeviceID()),
		zoom:     settings.Zoom,
		torch:    settings.Torch,
	}, nil
}

func (h *Handle) Track() camera.Track               { return h.track }
func (h *Handle) Capturer() camera.ImageCapturer    { return h.capturer }
func (h *Handle) Capabilities() camera.Capabilities { return h.caps }
func (h *Handle) Strategy() Strategy                { return h.strategy }
func (h *Handle) DeviceID() string                  { return h.track.DeviceID() }
func (h *Handle) Label() string                     { return h.track.Label() }

// Zoom returns the last zoom level applied.
func (h *Handle) Zoom() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zoom
}

// Torch reports whether the torch was last switched on.
func (h *Handle) Torch() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.torch
}

// Tune applies zoom, focus and white balance one control at a time. Zoom is
// clamped into the supported range preferring 1.0, since some devices start
// on their ultra-wide module. Failures are ignored.
func (h *Handle) Tune(ctx context.Context) {
	if h.caps.Zoom != nil {
		z := h.caps.Zoom.Clamp(1.0)
		if err := h.apply(ctx, camera.Advanced{Zoom: &z}); err == nil {
			h.mu.Lock()
			h.zoom = z
			h.mu.Unlock()
		} else {
			h.logger.Debug("Zoom tuning ignored", "error", err)
		}
	}

	switch {
	case h.caps.SupportsFocus(camera.ModeContinuous):
		h.tryApply(ctx, "focus", camera.Advanced{FocusMode: camera.ModeContinuous})
	case h.caps.SupportsFocus(camera.ModeSingleShot):
		h.tryApply(ctx, "focus", camera.Advanced{FocusMode: camera.ModeSingleShot})
	}

	if h.caps.SupportsWhiteBalance(camera.ModeContinuous) {
		h.tryApply(ctx, "white balance", camera.Advanced{WhiteBalanceMode: camera.ModeContinuous})
	}
}

func (h *Handle) tryApply(ctx context.Context, what string, adv camera.Advanced) {
	if err := h.apply(ctx, adv); err != nil {
		h.logger.Debug("Tuning ignored", "control", what, "error", err)
	}
}

// SetZoom clamps level into the supported range and applies it.
func (h *Handle) SetZoom(ctx context.Context, level float64) (float64, error) {
	if h.caps.Zoom == nil {
		return 0, camera.ErrUnsupportedCapability
	}
	z := h.caps.Zoom.Clamp(level)
	if err := h.apply(ctx, camera.Advanced{Zoom: &z}); err != nil {
		return 0, err
	}
	h.mu.Lock()
	h.zoom = z
	h.mu.Unlock()
	return z, nil
}

// SetTorch switches the torch.
func (h *Handle) SetTorch(ctx context.Context, on bool) error {
	if !h.caps.Torch {
		return camera.ErrUnsupportedCapability
	}
	if err := h.apply(ctx, camera.Advanced{Torch: &on}); err != nil {
		return err
	}
	h.mu.Lock()
	h.torch = on
	h.mu.Unlock()
	return nil
}

func (h *Handle) apply(ctx context.Context, adv camera.Advanced) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return camera.ErrTrackEnded
	}
	return h.track.ApplyConstraints(ctx, adv)
}

// Closed reports whether Close has run.
func (h *Handle) Closed() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close stops every track. It is idempotent and safe on a nil handle.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	camera.StopAll(h.stream)
	h.logger.Debug("Camera released")
}
