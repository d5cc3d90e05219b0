// Package stream opens camera streams with a cascade of constraint
// strategies and applies best-effort tuning to the live track.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/logging"
)

// Strategy names the constraint set that produced a stream.
type Strategy string

const (
	StrategyDevice           Strategy = "device"
	StrategyEnvironmentExact Strategy = "environment-exact"
	StrategyEnvironmentIdeal Strategy = "environment-ideal"
)

// Options are the ideal stream dimensions.
type Options struct {
	Width       int
	Height      int
	AspectRatio float64
}

// DefaultOptions asks for 1280x720.
var DefaultOptions = Options{Width: 1280, Height: 720, AspectRatio: 16.0 / 9.0}

// Manager opens streams on a platform.
type Manager struct {
	md     camera.MediaDevices
	opts   Options
	logger *slog.Logger
}

// NewManager creates a manager for md. Zero dimensions use DefaultOptions.
func NewManager(md camera.MediaDevices, opts Options) *Manager {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultOptions.Width, DefaultOptions.Height
	}
	if opts.AspectRatio <= 0 {
		opts.AspectRatio = float64(opts.Width) / float64(opts.Height)
	}
	return &Manager{md: md, opts: opts, logger: logging.GetLogger("stream")}
}

type attempt struct {
	strategy    Strategy
	constraints camera.Constraints
}

func (m *Manager) cascade(deviceID string) []attempt {
	base := camera.Constraints{Width: m.opts.Width, Height: m.opts.Height, AspectRatio: m.opts.AspectRatio}
	var steps []attempt
	if deviceID != "" {
		c := base
		c.DeviceID = deviceID
		steps = append(steps, attempt{StrategyDevice, c})
	}
	exact := base
	exact.FacingMode, exact.FacingExact = camera.FacingEnvironment, true
	ideal := base
	ideal.FacingMode = camera.FacingEnvironment
	return append(steps, attempt{StrategyEnvironmentExact, exact}, attempt{StrategyEnvironmentIdeal, ideal})
}

// Open acquires a stream: the exact device when deviceID is set and still
// present, then an exact rear-facing camera, then any camera preferring the
// rear. Busy, missing or unsatisfiable devices fall through to the next
// strategy. Permission errors stop the cascade. When every strategy fails
// the error wraps camera.ErrCameraUnavailable and the last cause.
func (m *Manager) Open(ctx context.Context, deviceID string) (*Handle, error) {
	return m.try(ctx, m.cascade(deviceID))
}

// OpenExact opens deviceID without falling back to another camera.
func (m *Manager) OpenExact(ctx context.Context, deviceID string) (*Handle, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("open exact: empty device id: %w", camera.ErrConstraintsUnsatisfiable)
	}
	return m.try(ctx, m.cascade(deviceID)[:1])
}

func (m *Manager) try(ctx context.Context, steps []attempt) (*Handle, error) {
	var lastErr error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := m.md.GetUserMedia(ctx, step.constraints)
		if err == nil {
			h, herr := newHandle(s, step.strategy)
			if herr == nil {
				m.logger.Info("Camera opened",
					"strategy", step.strategy, "device_id", h.DeviceID(), "label", h.Label())
				return h, nil
			}
			err = herr
		}

		switch {
		case errors.Is(err, camera.ErrPermissionDenied):
			m.logger.Warn("Camera permission denied", "strategy", step.strategy)
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, camera.ErrDeviceUnavailable), errors.Is(err, camera.ErrConstraintsUnsatisfiable):
			m.logger.Debug("Open strategy failed", "strategy", step.strategy, "error", err)
		default:
			m.logger.Warn("Open strategy failed unexpectedly", "strategy", step.strategy, "error", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", camera.ErrCameraUnavailable, lastErr)
}
