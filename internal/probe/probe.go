// Package probe tries candidate cameras one after another, giving each a
// bounded trial window to produce a decode.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/devices"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/internal/metrics"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/stream"
)

var (
	// ErrExhausted means every candidate was tried without a decode.
	// Photo decoding is the suggested next step.
	ErrExhausted = errors.New("no camera produced a decode; try a photo instead")
	// ErrUserLocked means the user picked a camera explicitly.
	ErrUserLocked = errors.New("camera choice locked by user")
)

// DefaultWindow is the trial length per candidate.
const DefaultWindow = 3 * time.Second

// Opener opens one specific camera.
type Opener interface {
	OpenExact(ctx context.Context, deviceID string) (*stream.Handle, error)
}

// Loop scans an open stream until it decodes or ctx ends.
type Loop func(ctx context.Context, h *stream.Handle) (decode.Result, error)

// Request describes one probe run.
type Request struct {
	// Candidates is the fresh device list. It is ranked before use.
	Candidates []devices.CameraDevice
	// Exclude lists device ids that already failed a trial.
	Exclude []string
	// Locked reports the user lock. It is checked before every candidate.
	Locked func() bool
	Window time.Duration
	Loop   Loop
}

// Winner is the candidate that decoded. Its handle stays open.
type Winner struct {
	Device devices.CameraDevice
	Handle *stream.Handle
	Result decode.Result
}

// Prober runs probe requests.
type Prober struct {
	opener Opener
	store  prefs.Store
	bus    *events.Bus
	logger *slog.Logger
}

// New creates a prober. store and bus may be nil.
func New(opener Opener, store prefs.Store, bus *events.Bus) *Prober {
	return &Prober{
		opener: opener,
		store:  store,
		bus:    bus,
		logger: logging.GetLogger("probe"),
	}
}

// Order ranks devices for probing and drops excluded ids.
func Order(list []devices.CameraDevice, exclude []string) []devices.CameraDevice {
	var out []devices.CameraDevice
	for _, d := range devices.Rank(list) {
		if !slices.Contains(exclude, d.DeviceID) {
			out = append(out, d)
		}
	}
	return out
}

// Run opens each candidate in ranked order and races its Loop against the
// trial window. The first decode wins: its handle is returned open and its
// id is saved as the preferred device. Candidates that fail to open or time
// out are closed before the next one is tried.
func (p *Prober) Run(ctx context.Context, req Request) (*Winner, error) {
	if req.Loop == nil {
		return nil, errors.New("probe: no scan loop")
	}
	window := req.Window
	if window <= 0 {
		window = DefaultWindow
	}

	candidates := Order(req.Candidates, req.Exclude)
	p.logger.Info("Probing cameras", "candidates", len(candidates), "window", window)

	for _, dev := range candidates {
		if req.Locked != nil && req.Locked() {
			return nil, ErrUserLocked
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h, err := p.opener.OpenExact(ctx, dev.DeviceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.report(dev, events.ProbeUnavailable)
			p.logger.Debug("Candidate unavailable", "device_id", dev.DeviceID, "error", err)
			continue
		}
		p.report(dev, events.ProbeOpened)

		res, err := p.trial(ctx, h, window, req.Loop)
		if err == nil {
			p.report(dev, events.ProbeSuccess)
			p.remember(dev)
			p.logger.Info("Probe found a working camera", "device_id", dev.DeviceID, "label", dev.Label)
			return &Winner{Device: dev, Handle: h, Result: res}, nil
		}

		h.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			p.report(dev, events.ProbeTimeout)
		} else {
			p.report(dev, events.ProbeUnavailable)
			p.logger.Debug("Candidate failed", "device_id", dev.DeviceID, "error", err)
		}
	}
	return nil, ErrExhausted
}

func (p *Prober) trial(ctx context.Context, h *stream.Handle, window time.Duration, loop Loop) (decode.Result, error) {
	tctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	h.Tune(tctx)
	return loop(tctx, h)
}

func (p *Prober) remember(dev devices.CameraDevice) {
	if p.store == nil {
		return
	}
	if err := p.store.Set(prefs.KeyPreferredDevice, dev.DeviceID); err != nil {
		p.logger.Warn("Failed to save preferred camera", "device_id", dev.DeviceID, "error", err)
	}
}

func (p *Prober) report(dev devices.CameraDevice, outcome string) {
	if outcome != events.ProbeOpened {
		metrics.ProbeCandidate(outcome)
	}
	p.bus.Publish(events.ProbeAttemptEvent{
		DeviceID:  dev.DeviceID,
		Label:     dev.Label,
		Outcome:   outcome,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
