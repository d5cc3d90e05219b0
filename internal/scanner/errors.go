package scanner

import (
	"errors"
	"fmt"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/probe"
)

// SessionError is the user-facing failure of a scan session.
type SessionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Cause     error  `json:"-"`
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeDeviceUnavailable = "DEVICE_UNAVAILABLE"
	ErrCodeCameraUnavailable = "CAMERA_UNAVAILABLE"
	ErrCodeDeviceLost        = "DEVICE_LOST"
	ErrCodeProbeExhausted    = "PROBE_EXHAUSTED"
)

var (
	// ErrNoSession is returned by stream controls when no camera is live.
	ErrNoSession = errors.New("no active scan session")
	// ErrUnknownDevice is returned by SelectDevice for an id that is not
	// currently attached.
	ErrUnknownDevice = errors.New("unknown camera device")

	errStopped    = errors.New("scan stopped")
	errDeviceLost = errors.New("camera disconnected")
)

// NewSessionError creates a new session error
func NewSessionError(code, message string, retryable bool, cause error) *SessionError {
	return &SessionError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// classify maps an acquisition failure to its session error. Only an
// exhausted probe is final.
func classify(err error) *SessionError {
	var se *SessionError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, camera.ErrPermissionDenied):
		return NewSessionError(ErrCodePermissionDenied, "camera access was refused", true, err)
	case errors.Is(err, probe.ErrExhausted):
		return NewSessionError(ErrCodeProbeExhausted, "no camera could read a code, take a photo instead", false, err)
	case errors.Is(err, camera.ErrCameraUnavailable):
		return NewSessionError(ErrCodeCameraUnavailable, "no camera could be opened", true, err)
	case errors.Is(err, camera.ErrTrackEnded), errors.Is(err, errDeviceLost):
		return NewSessionError(ErrCodeDeviceLost, "the camera was disconnected", true, err)
	default:
		return NewSessionError(ErrCodeDeviceUnavailable, "the camera is missing or busy", true, err)
	}
}
