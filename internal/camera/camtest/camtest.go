// Package camtest provides an in-memory camera.MediaDevices for tests.
package camtest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/starknet/codescan/internal/camera"
)

// Device scripts one fake camera.
type Device struct {
	ID    string
	Label string
	// Marker is painted into every frame; see Frame and MarkerOf.
	Marker uint8
	// OpenErr is returned by GetUserMedia when this device is chosen.
	OpenErr error
	Caps    camera.Capabilities
	// Snapshot makes tracks implement camera.ImageCapturer.
	Snapshot bool
	// ReadDelay slows every ReadFrame call.
	ReadDelay time.Duration
}

// MediaDevices is a scriptable camera.MediaDevices.
type MediaDevices struct {
	mu           sync.Mutex
	devices      []*Device
	removed      map[string]bool
	enumerateErr error
	requests     []camera.Constraints
	opened       []string
	tracks       []*Track
	seq          int
}

// New returns a fake platform exposing devices in order.
func New(devices ...Device) *MediaDevices {
	m := &MediaDevices{removed: make(map[string]bool)}
	for i := range devices {
		d := devices[i]
		m.devices = append(m.devices, &d)
	}
	return m
}

// SetEnumerateError makes EnumerateDevices fail with err.
func (m *MediaDevices) SetEnumerateError(err error) {
	m.mu.Lock()
	m.enumerateErr = err
	m.mu.Unlock()
}

// SetMarker changes the marker painted into frames of device id.
func (m *MediaDevices) SetMarker(id string, marker uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.find(id); d != nil {
		d.Marker = marker
	}
}

// Remove unplugs device id: it disappears from enumeration and its live
// tracks end.
func (m *MediaDevices) Remove(id string) {
	m.mu.Lock()
	m.removed[id] = true
	var ended []*Track
	for _, t := range m.tracks {
		if t.dev.ID == id {
			ended = append(ended, t)
		}
	}
	m.mu.Unlock()

	for _, t := range ended {
		t.end()
	}
}

// EnumerateDevices implements camera.MediaDevices.
func (m *MediaDevices) EnumerateDevices(ctx context.Context) ([]camera.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enumerateErr != nil {
		return nil, m.enumerateErr
	}
	infos := make([]camera.DeviceInfo, 0, len(m.devices))
	for _, d := range m.devices {
		if m.removed[d.ID] {
			continue
		}
		infos = append(infos, camera.DeviceInfo{DeviceID: d.ID, Label: d.Label})
	}
	return infos, nil
}

// GetUserMedia implements camera.MediaDevices. An exact device id must name
// an attached device. An exact environment facing mode needs a back-facing
// label; an ideal one falls back to the first device.
func (m *MediaDevices) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)

	d, err := m.choose(c)
	if err != nil {
		return nil, err
	}
	m.opened = append(m.opened, d.ID)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	m.seq++
	t := &Track{
		id:       fmt.Sprintf("track-%d", m.seq),
		dev:      *d,
		parent:   m,
		settings: camera.Settings{Width: pick(c.Width, 1280), Height: pick(c.Height, 720)},
	}
	m.tracks = append(m.tracks, t)

	var track camera.Track = t
	if d.Snapshot {
		track = Snapshot(t)
	}
	return &Stream{id: fmt.Sprintf("stream-%d", m.seq), tracks: []camera.Track{track}}, nil
}

func (m *MediaDevices) choose(c camera.Constraints) (*Device, error) {
	if c.DeviceID != "" {
		if d := m.find(c.DeviceID); d != nil && !m.removed[d.ID] {
			return d, nil
		}
		return nil, fmt.Errorf("device %s: %w", c.DeviceID, camera.ErrConstraintsUnsatisfiable)
	}

	var first *Device
	for _, d := range m.devices {
		if m.removed[d.ID] {
			continue
		}
		if first == nil {
			first = d
		}
		if c.FacingMode == camera.FacingEnvironment && backFacing(d.Label) {
			return d, nil
		}
	}
	if first == nil {
		return nil, fmt.Errorf("no video input: %w", camera.ErrDeviceUnavailable)
	}
	if c.FacingExact {
		return nil, fmt.Errorf("facing %s: %w", c.FacingMode, camera.ErrConstraintsUnsatisfiable)
	}
	return first, nil
}

func (m *MediaDevices) find(id string) *Device {
	for _, d := range m.devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Requests returns every constraint set passed to GetUserMedia.
func (m *MediaDevices) Requests() []camera.Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]camera.Constraints(nil), m.requests...)
}

// Opened returns the device ids GetUserMedia resolved, in call order,
// including ones whose open failed.
func (m *MediaDevices) Opened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.opened...)
}

// Tracks returns every track handed out so far.
func (m *MediaDevices) Tracks() []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Track(nil), m.tracks...)
}

// LiveTracks counts tracks that have not been stopped.
func (m *MediaDevices) LiveTracks() int {
	n := 0
	for _, t := range m.Tracks() {
		if t.ReadyState() == camera.Live {
			n++
		}
	}
	return n
}

// Stream is a fake camera.Stream.
type Stream struct {
	id     string
	tracks []camera.Track
}

func (s *Stream) ID() string                  { return s.id }
func (s *Stream) VideoTracks() []camera.Track { return s.tracks }

// Track is a fake camera.Track.
type Track struct {
	id     string
	dev    Device
	parent *MediaDevices

	mu       sync.Mutex
	ended    bool
	stops    int
	reads    int
	applied  []camera.Advanced
	settings camera.Settings
}

func (t *Track) ID() string       { return t.id }
func (t *Track) DeviceID() string { return t.dev.ID }
func (t *Track) Label() string    { return t.dev.Label }

func (t *Track) Capabilities() camera.Capabilities { return t.dev.Caps }

func (t *Track) Settings() camera.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// ApplyConstraints records adv and applies the fields the device advertises.
func (t *Track) ApplyConstraints(_ context.Context, adv camera.Advanced) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return camera.ErrTrackEnded
	}
	t.applied = append(t.applied, adv)

	caps := t.dev.Caps
	if adv.Torch != nil && !caps.Torch {
		return camera.ErrUnsupportedCapability
	}
	if adv.Zoom != nil && caps.Zoom == nil {
		return camera.ErrUnsupportedCapability
	}
	if adv.FocusMode != "" && !caps.SupportsFocus(adv.FocusMode) {
		return camera.ErrUnsupportedCapability
	}
	if adv.WhiteBalanceMode != "" && !caps.SupportsWhiteBalance(adv.WhiteBalanceMode) {
		return camera.ErrUnsupportedCapability
	}

	if adv.Torch != nil {
		t.settings.Torch = *adv.Torch
	}
	if adv.Zoom != nil {
		t.settings.Zoom = *adv.Zoom
	}
	if adv.FocusMode != "" {
		t.settings.FocusMode = adv.FocusMode
	}
	if adv.WhiteBalanceMode != "" {
		t.settings.WhiteBalanceMode = adv.WhiteBalanceMode
	}
	return nil
}

// Applied returns every Advanced set passed to ApplyConstraints.
func (t *Track) Applied() []camera.Advanced {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]camera.Advanced(nil), t.applied...)
}

// ReadFrame returns a frame carrying the device marker.
func (t *Track) ReadFrame(ctx context.Context) (image.Image, error) {
	return t.frame(ctx)
}

func (t *Track) frame(ctx context.Context) (image.Image, error) {
	if t.dev.ReadDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.dev.ReadDelay):
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return nil, camera.ErrTrackEnded
	}
	t.reads++

	t.parent.mu.Lock()
	marker := t.dev.Marker
	if d := t.parent.find(t.dev.ID); d != nil {
		marker = d.Marker
	}
	t.parent.mu.Unlock()

	return Frame(t.settings.Width/4, t.settings.Height/4, marker), nil
}

// Reads counts successful ReadFrame and GrabFrame calls.
func (t *Track) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}

func (t *Track) ReadyState() camera.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return camera.Ended
	}
	return camera.Live
}

// Stop ends the track. Repeated calls are counted but harmless.
func (t *Track) Stop() {
	t.mu.Lock()
	t.stops++
	t.ended = true
	t.mu.Unlock()
}

// Stops reports how many times Stop was called.
func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *Track) end() {
	t.mu.Lock()
	t.ended = true
	t.mu.Unlock()
}

// SnapshotTrack is a Track that also implements camera.ImageCapturer.
type SnapshotTrack struct {
	*Track
	grabs int
}

// Snapshot wraps t so it advertises full-resolution stills.
func Snapshot(t *Track) *SnapshotTrack { return &SnapshotTrack{Track: t} }

// GrabFrame implements camera.ImageCapturer.
func (s *SnapshotTrack) GrabFrame(ctx context.Context) (image.Image, error) {
	img, err := s.frame(ctx)
	if err == nil {
		s.Track.mu.Lock()
		s.grabs++
		s.Track.mu.Unlock()
	}
	return img, err
}

// Grabs counts successful GrabFrame calls.
func (s *SnapshotTrack) Grabs() int {
	s.Track.mu.Lock()
	defer s.Track.mu.Unlock()
	return s.grabs
}

// Frame returns a w x h grey image whose every pixel has luma marker.
// Markers survive cropping, so fake decoders can tell devices apart.
func Frame(w, h int, marker uint8) image.Image {
	if w <= 0 {
		w = 320
	}
	if h <= 0 {
		h = 180
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = marker
	}
	return img
}

// MarkerOf reads the marker at the center of img.
func MarkerOf(img image.Image) uint8 {
	b := img.Bounds()
	c := color.GrayModel.Convert(img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)).(color.Gray)
	return c.Y
}

func backFacing(label string) bool {
	l := strings.ToLower(label)
	for _, kw := range []string{"back", "rear", "environment"} {
		if strings.Contains(l, kw) {
			return true
		}
	}
	return false
}

func pick(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
