// Package camera defines the contract between the scanner and the platform
// camera stack: device enumeration, stream acquisition with constraints,
// per-track capabilities and frame access.
package camera

import (
	"context"
	"errors"
	"image"
	"slices"
)

var (
	// ErrPermissionDenied means the user or OS refused camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable means the device is busy, gone or otherwise unreadable.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrConstraintsUnsatisfiable means no device matches the requested constraints.
	ErrConstraintsUnsatisfiable = errors.New("camera constraints unsatisfiable")
	// ErrUnsupportedCapability means the track does not expose the requested control.
	ErrUnsupportedCapability = errors.New("camera capability not supported")
	// ErrCameraUnavailable means every acquisition strategy failed.
	ErrCameraUnavailable = errors.New("no camera available")
	// ErrTrackEnded means the track stopped delivering frames.
	ErrTrackEnded = errors.New("camera track ended")
)

// FacingMode is the direction a camera faces relative to the user.
type FacingMode string

const (
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// Focus and white balance modes.
const (
	ModeContinuous = "continuous"
	ModeSingleShot = "single-shot"
	ModeManual     = "manual"
)

// ReadyState is the liveness of a track.
type ReadyState int

const (
	Live ReadyState = iota
	Ended
)

func (s ReadyState) String() string {
	if s == Live {
		return "live"
	}
	return "ended"
}

// DeviceInfo describes one video input. Label is empty when the platform
// withholds names (typically before permission is granted).
type DeviceInfo struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label"`
}

// Constraints select and shape a stream. DeviceID, when set, is an exact
// requirement. FacingMode is a preference unless FacingExact is set.
// Width, Height and AspectRatio are ideals.
type Constraints struct {
	DeviceID    string
	FacingMode  FacingMode
	FacingExact bool
	Width       int
	Height      int
	AspectRatio float64
	Advanced    []Advanced
}

// Advanced is a set of optional track controls. Nil or empty fields are
// left untouched.
type Advanced struct {
	Zoom             *float64
	FocusMode        string
	WhiteBalanceMode string
	Torch            *bool
}

// Range is a numeric capability range.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Capabilities lists the controls a track supports.
type Capabilities struct {
	Zoom              *Range   `json:"zoom,omitempty"`
	FocusModes        []string `json:"focus_modes,omitempty"`
	WhiteBalanceModes []string `json:"white_balance_modes,omitempty"`
	Torch             bool     `json:"torch"`
}

// SupportsFocus reports whether mode is an advertised focus mode.
func (c Capabilities) SupportsFocus(mode string) bool {
	return slices.Contains(c.FocusModes, mode)
}

// SupportsWhiteBalance reports whether mode is an advertised white balance mode.
func (c Capabilities) SupportsWhiteBalance(mode string) bool {
	return slices.Contains(c.WhiteBalanceModes, mode)
}

// Settings are the values currently applied to a track.
type Settings struct {
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Zoom             float64 `json:"zoom,omitempty"`
	FocusMode        string  `json:"focus_mode,omitempty"`
	WhiteBalanceMode string  `json:"white_balance_mode,omitempty"`
	Torch            bool    `json:"torch"`
}

// Track is a live video track.
type Track interface {
	ID() string
	DeviceID() string
	Label() string
	Capabilities() Capabilities
	Settings() Settings
	ApplyConstraints(ctx context.Context, adv Advanced) error
	ReadFrame(ctx context.Context) (image.Image, error)
	ReadyState() ReadyState
	Stop()
}

// ImageCapturer is implemented by tracks that can grab a full-resolution
// still without disturbing the live stream.
type ImageCapturer interface {
	GrabFrame(ctx context.Context) (image.Image, error)
}

// Stream is an acquired media stream.
type Stream interface {
	ID() string
	VideoTracks() []Track
}

// MediaDevices is the platform entry point.
type MediaDevices interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// StopAll stops every video track of s. A nil stream is ignored.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.VideoTracks() {
		t.Stop()
	}
}
