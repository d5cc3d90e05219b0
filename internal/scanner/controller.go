// Package scanner drives live barcode scanning: it owns the single active
// scan session, runs the decode cadence and delivers at most one result per
// session.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/devices"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/frame"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/internal/metrics"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/probe"
	"github.com/starknet/codescan/internal/stream"
)

// Session states.
const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateRunning  = "running"
	StateSuccess  = "success"
	StateStopped  = "stopped"
	StateError    = "error"
)

const (
	eventStart  = "start"
	eventOpened = "opened"
	eventDetect = "detect"
	eventStop   = "stop"
	eventFail   = "fail"
)

func newMachine(enter fsm.Callback) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle, StateStopped, StateSuccess, StateError}, Dst: StateStarting},
			{Name: eventOpened, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: eventDetect, Src: []string{StateRunning}, Dst: StateSuccess},
			{Name: eventStop, Src: []string{StateStarting, StateRunning}, Dst: StateStopped},
			{Name: eventFail, Src: []string{StateStarting, StateRunning}, Dst: StateError},
		},
		fsm.Callbacks{"enter_state": enter},
	)
}

// Haptics gives physical feedback on a successful scan.
type Haptics interface {
	Vibrate(ctx context.Context, d time.Duration) error
}

// Deps are the controller's collaborators. Only Devices and Engine are
// required.
type Deps struct {
	Devices camera.MediaDevices
	Streams *stream.Manager
	Engine  *decode.Engine
	Prefs   prefs.Store
	Bus     *events.Bus
	Haptics Haptics
}

// StartOptions configure one session.
type StartOptions struct {
	// DeviceID asks for a specific camera. A missing device falls back to
	// the remembered or best-ranked one.
	DeviceID string
	// OnDetected is called at most once, with the trimmed code.
	OnDetected func(decode.Result)
}

// Controller owns at most one scan session at a time.
type Controller struct {
	md      camera.MediaDevices
	streams *stream.Manager
	engine  *decode.Engine
	prefs   prefs.Store
	bus     *events.Bus
	haptics Haptics
	prober  *probe.Prober
	logger  *slog.Logger
	unsub   func()

	// opMu serializes Start, Stop, Probe and SelectDevice.
	opMu sync.Mutex

	mu      sync.Mutex
	machine *fsm.FSM
	opts    Options
	session *Session
	locked  bool
}

// New creates an idle controller.
func New(deps Deps, opts Options) *Controller {
	streams := deps.Streams
	if streams == nil {
		streams = stream.NewManager(deps.Devices, stream.Options{})
	}
	c := &Controller{
		md:      deps.Devices,
		streams: streams,
		engine:  deps.Engine,
		prefs:   deps.Prefs,
		bus:     deps.Bus,
		haptics: deps.Haptics,
		prober:  probe.New(streams, deps.Prefs, deps.Bus),
		logger:  logging.GetLogger("scanner"),
		opts:    opts.normalized(),
	}
	c.machine = newMachine(c.enterState)
	c.unsub = deps.Bus.Subscribe(c.onDeviceEvent)
	return c
}

// Start begins a session. A running session is stopped first, so two
// streams are never open at once.
func (c *Controller) Start(ctx context.Context, so StartOptions) (*Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.begin(ctx, so, false)
}

// Probe begins a session that goes straight to auto-probe. It fails with
// probe.ErrUserLocked once the user has picked a camera.
func (c *Controller) Probe(ctx context.Context, so StartOptions) (*Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.Locked() {
		return nil, probe.ErrUserLocked
	}
	return c.begin(ctx, so, true)
}

// Stop ends the active session and waits until its camera is released.
// It is safe to call in any state and any number of times.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.halt(ctx)
}

// SelectDevice records an explicit user choice. The id must be attached
// now. The choice locks out auto-probe and is remembered. A live session is
// restarted on the chosen camera and the new session is returned.
func (c *Controller) SelectDevice(ctx context.Context, deviceID string) (*Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	list, err := devices.Enumerate(ctx, c.md)
	if err != nil {
		return nil, err
	}
	if _, ok := devices.Find(list, deviceID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	c.mu.Lock()
	c.locked = true
	s := c.session
	restart := s != nil && c.isActive()
	c.mu.Unlock()

	c.remember(deviceID)
	c.logger.Info("Camera selected by user", "device_id", deviceID)

	if !restart {
		return nil, nil
	}
	return c.begin(ctx, StartOptions{DeviceID: deviceID, OnDetected: s.onDetected}, false)
}

// Locked reports whether the user has picked a camera explicitly.
func (c *Controller) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// SetZoom changes the zoom of the live camera. It returns the applied level.
func (c *Controller) SetZoom(ctx context.Context, level float64) (float64, error) {
	h := c.live()
	if h == nil {
		return 0, ErrNoSession
	}
	return h.SetZoom(ctx, level)
}

// SetTorch switches the torch of the live camera.
func (c *Controller) SetTorch(ctx context.Context, on bool) error {
	h := c.live()
	if h == nil {
		return ErrNoSession
	}
	return h.SetTorch(ctx, on)
}

// UpdateOptions replaces the options used by the next session.
func (c *Controller) UpdateOptions(opts Options) {
	c.mu.Lock()
	c.opts = opts.normalized()
	c.mu.Unlock()
}

// Options returns the options for the next session.
func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Status is a point-in-time view of the controller.
type Status struct {
	State        string               `json:"state"`
	SessionID    string               `json:"session_id,omitempty"`
	DeviceID     string               `json:"device_id,omitempty"`
	Label        string               `json:"label,omitempty"`
	Locked       bool                 `json:"locked"`
	Zoom         float64              `json:"zoom,omitempty"`
	Torch        bool                 `json:"torch"`
	Capabilities *camera.Capabilities `json:"capabilities,omitempty"`
	Error        *SessionError        `json:"error,omitempty"`
}

// Status reports the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{State: c.machine.Current(), Locked: c.locked}
	s := c.session
	running := st.State == StateRunning
	c.mu.Unlock()

	if s == nil {
		return st
	}
	st.SessionID = s.id
	st.Error = s.Err()

	s.mu.Lock()
	st.DeviceID, st.Label = s.deviceID, s.label
	h := s.handle
	s.mu.Unlock()

	if running && h != nil && !h.Closed() {
		caps := h.Capabilities()
		st.Capabilities = &caps
		st.Zoom, st.Torch = h.Zoom(), h.Torch()
	}
	return st
}

// Close stops any session and detaches from the event bus.
func (c *Controller) Close() {
	c.unsub()
	if err := c.Stop(context.Background()); err != nil {
		c.logger.Warn("Failed to stop session on close", "error", err)
	}
}

func (c *Controller) begin(ctx context.Context, so StartOptions, probeOnly bool) (*Session, error) {
	if err := c.halt(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	s := newSession(c.opts, so.OnDetected)
	if !c.fire(s, eventStart) {
		state := c.machine.Current()
		c.mu.Unlock()
		return nil, fmt.Errorf("cannot start scan in state %s", state)
	}
	c.session = s
	c.mu.Unlock()

	go c.run(s, so.DeviceID, probeOnly)
	return s, nil
}

// halt stops the active session, if any, and waits for it to release the
// camera.
func (c *Controller) halt(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	active := s != nil && c.isActive()
	if active {
		c.fire(s, eventStop)
		s.cancel(errStopped)
	}
	c.mu.Unlock()

	if !active {
		return nil
	}
	s.current().Close()
	return s.Wait(ctx)
}

func (c *Controller) run(s *Session, requested string, probeOnly bool) {
	defer c.finish(s)
	ctx := s.ctx

	list, err := devices.Enumerate(ctx, c.md)
	if err != nil {
		c.end(s, err)
		return
	}
	if probeOnly {
		c.probe(s, list, nil)
		return
	}

	h, err := c.streams.Open(ctx, c.resolve(list, requested))
	if err != nil {
		c.end(s, err)
		return
	}
	if !c.adopt(s, h) {
		h.Close()
		return
	}
	h.Tune(ctx)

	scanCtx := ctx
	handoff := c.canHandOff(s, list)
	if handoff {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.opts.ProbeAfter)
		defer cancel()
	}

	res, err := c.scan(scanCtx, s, h)
	switch {
	case err == nil:
		c.deliver(s, res)
	case handoff && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		c.logger.Info("No code decoded yet, probing other cameras",
			"session_id", s.id, "device_id", h.DeviceID(), "after", s.opts.ProbeAfter)
		h.Close()
		c.probe(s, list, []string{h.DeviceID()})
	default:
		c.end(s, err)
	}
}

func (c *Controller) probe(s *Session, list []devices.CameraDevice, exclude []string) {
	w, err := c.prober.Run(s.ctx, probe.Request{
		Candidates: list,
		Exclude:    exclude,
		Locked:     c.Locked,
		Window:     s.opts.TrialWindow,
		Loop: func(ctx context.Context, h *stream.Handle) (decode.Result, error) {
			if !c.adopt(s, h) {
				return decode.Result{}, errStopped
			}
			return c.scan(ctx, s, h)
		},
	})
	if err != nil {
		c.end(s, err)
		return
	}
	c.deliver(s, w.Result)
}

// resolve picks the device id to open: the requested one when attached,
// then the remembered one, then the best-ranked one. Without labels the
// ranking means nothing, so the empty id lets the stream cascade choose by
// facing mode.
func (c *Controller) resolve(list []devices.CameraDevice, requested string) string {
	if requested != "" {
		if _, ok := devices.Find(list, requested); ok {
			return requested
		}
		c.logger.Warn("Requested camera is not attached", "device_id", requested)
	}

	var saved string
	if c.prefs != nil {
		saved, _ = c.prefs.Get(prefs.KeyPreferredDevice)
	}
	dev, fromPreference, ok := devices.ResolvePreferred(list, saved)
	switch {
	case !ok:
		return ""
	case fromPreference:
		return dev.DeviceID
	case saved != "":
		c.logger.Info("Remembered camera is gone, picking again", "device_id", saved)
	}
	if !devices.Labeled(list) {
		return ""
	}
	return dev.DeviceID
}

func (c *Controller) canHandOff(s *Session, list []devices.CameraDevice) bool {
	return s.opts.ProbeAfter > 0 && len(list) >= 2 && !c.Locked()
}

// scan runs decode attempts until one succeeds, the track ends or ctx is
// done. Attempts never overlap and start at least Interval apart.
func (c *Controller) scan(ctx context.Context, s *Session, h *stream.Handle) (decode.Result, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return decode.Result{}, ctx.Err()
		case <-timer.C:
		}

		started := time.Now()
		res, err := c.attempt(ctx, s, h)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, decode.ErrNotFound):
		case errors.Is(err, camera.ErrTrackEnded):
			return decode.Result{}, err
		case ctx.Err() != nil:
			return decode.Result{}, ctx.Err()
		default:
			c.logger.Debug("Frame skipped", "session_id", s.id, "error", err)
		}
		timer.Reset(max(0, s.opts.Interval-time.Since(started)))
	}
}

func (c *Controller) attempt(ctx context.Context, s *Session, h *stream.Handle) (decode.Result, error) {
	img, _, err := frame.Get(ctx, h)
	if err != nil {
		return decode.Result{}, err
	}
	region, err := frame.CropROI(img, s.opts.ROI)
	if err != nil {
		return decode.Result{}, err
	}
	return c.engine.Decode(ctx, region, decode.SourceVideo)
}

// adopt makes h the session's stream. It fails once the session is no
// longer current or active.
func (c *Controller) adopt(s *Session, h *stream.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || !c.isActive() {
		return false
	}
	s.attach(h)
	if c.machine.Current() == StateStarting {
		c.fire(s, eventOpened)
	}
	return true
}

// deliver accepts res as the session's only result, unless the session was
// stopped or failed first. The camera is released before the callback runs.
func (c *Controller) deliver(s *Session, res decode.Result) {
	c.mu.Lock()
	if c.session != s || c.machine.Current() != StateRunning {
		c.mu.Unlock()
		c.logger.Debug("Discarding result of ended session", "session_id", s.id)
		return
	}
	c.fire(s, eventDetect, res)
	c.mu.Unlock()

	deviceID := s.DeviceID()
	s.current().Close()
	c.remember(deviceID)
	c.vibrate()

	s.result <- res
	if s.onDetected != nil {
		s.onDetected(res)
	}
	c.bus.Publish(events.CodeDetectedEvent{
		SessionID: s.id,
		Text:      res.Text,
		Symbology: string(res.Symbology),
		Source:    string(res.Source),
		Backend:   res.Backend,
		DeviceID:  deviceID,
		Timestamp: res.Timestamp.Format(time.RFC3339),
	})
}

// end moves the session to the error state, unless it was stopped.
func (c *Controller) end(s *Session, err error) {
	cause := context.Cause(s.ctx)
	if errors.Is(cause, errStopped) {
		return
	}
	if errors.Is(cause, errDeviceLost) {
		err = cause
	}

	se := classify(err)
	c.mu.Lock()
	if c.session != s || !c.isActive() {
		c.mu.Unlock()
		return
	}
	s.setErr(se)
	c.fire(s, eventFail)
	c.mu.Unlock()

	c.logger.Error("Scan session failed", "session_id", s.id, "code", se.Code, "error", se.Cause)
	c.bus.Publish(events.ScanErrorEvent{
		SessionID: s.id,
		Code:      se.Code,
		Message:   se.Message,
		Retryable: se.Retryable,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (c *Controller) finish(s *Session) {
	s.current().Close()
	s.cancel(errStopped)
	close(s.result)
	close(s.done)
}

// remember saves a confirmed device as the preferred one.
func (c *Controller) remember(deviceID string) {
	if c.prefs == nil || deviceID == "" {
		return
	}
	if saved, ok := c.prefs.Get(prefs.KeyPreferredDevice); ok && saved == deviceID {
		return
	}
	if err := c.prefs.Set(prefs.KeyPreferredDevice, deviceID); err != nil {
		c.logger.Warn("Failed to save preferred camera", "device_id", deviceID, "error", err)
	}
}

func (c *Controller) vibrate() {
	if c.haptics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := c.haptics.Vibrate(ctx, 150*time.Millisecond); err != nil {
		c.logger.Debug("Haptic feedback unavailable", "error", err)
	}
}

func (c *Controller) live() *stream.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.machine.Current() != StateRunning {
		return nil
	}
	return c.session.current()
}

func (c *Controller) onDeviceEvent(e events.DeviceDiscoveryEvent) {
	if e.Action != events.ActionRemoved {
		return
	}
	c.mu.Lock()
	s := c.session
	active := s != nil && c.isActive()
	c.mu.Unlock()

	if active && s.DeviceID() == e.DeviceID {
		c.logger.Warn("Active camera removed", "session_id", s.id, "device_id", e.DeviceID)
		s.cancel(errDeviceLost)
	}
}

// isActive requires c.mu.
func (c *Controller) isActive() bool {
	switch c.machine.Current() {
	case StateStarting, StateRunning:
		return true
	}
	return false
}

// fire requires c.mu.
func (c *Controller) fire(s *Session, event string, args ...any) bool {
	if !c.machine.Can(event) {
		return false
	}
	if err := c.machine.Event(context.Background(), event, append([]any{s}, args...)...); err != nil {
		c.logger.Debug("Transition rejected", "event", event, "error", err)
		return false
	}
	return true
}

// enterState runs inside fire with c.mu held.
func (c *Controller) enterState(_ context.Context, e *fsm.Event) {
	var s *Session
	if len(e.Args) > 0 {
		s, _ = e.Args[0].(*Session)
	}
	if s == nil {
		return
	}

	deviceID := s.DeviceID()
	c.logger.Info("Scan state changed", "session_id", s.id, "from", e.Src, "to", e.Dst, "device_id", deviceID)
	switch e.Dst {
	case StateSuccess, StateStopped, StateError:
		metrics.SessionEnded(e.Dst)
	}
	c.bus.Publish(events.ScanStateChangedEvent{
		SessionID: s.id,
		From:      e.Src,
		To:        e.Dst,
		DeviceID:  deviceID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
