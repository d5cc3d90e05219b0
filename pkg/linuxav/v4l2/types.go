//go:build linux

package v4l2

import "errors"

// ErrUnsupported is returned for a control the device does not implement.
var ErrUnsupported = errors.New("v4l2: control not supported")

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Control describes one V4L2 control.
type Control struct {
	ID      uint32
	Name    string
	Type    uint32
	Min     int32
	Max     int32
	Step    int32
	Default int32
	Flags   uint32
}

// Disabled reports whether the control is permanently unavailable.
func (c Control) Disabled() bool {
	return c.Flags&ctrlFlagDisabled != 0
}

// ReadOnly reports whether the control can be read but not set.
func (c Control) ReadOnly() bool {
	return c.Flags&ctrlFlagReadOnly != 0
}

// Capability flags.
const (
	v4l2CapVideoCapture = 0x00000001
	v4l2CapDeviceCaps   = 0x80000000
)

// Format flags.
const (
	v4l2FmtFlagEmulated = 0x0002
)

// Common pixel formats.
const (
	v4l2PixFmtYUYV  = 0x56595559 // 'YUYV'
	v4l2PixFmtMJPEG = 0x47504A4D // 'MJPG'
	v4l2PixFmtNV12  = 0x3231564E // 'NV12'
)

// Frame size types.
const (
	v4l2FrmsizeTypeDiscrete   = 1
	v4l2FrmsizeTypeContinuous = 2
	v4l2FrmsizeTypeStepwise   = 3
)

// Buffer type.
const (
	v4l2BufTypeVideoCapture = 1
)

// Control ids.
const (
	CIDAutoWhiteBalance = 0x0098090c // V4L2_CID_BASE + 12
	CIDFocusAbsolute    = 0x009a090a // V4L2_CID_CAMERA_CLASS_BASE + 10
	CIDFocusAuto        = 0x009a090c // V4L2_CID_CAMERA_CLASS_BASE + 12
	CIDZoomAbsolute     = 0x009a090d // V4L2_CID_CAMERA_CLASS_BASE + 13
	CIDFlashLEDMode     = 0x009c0901 // V4L2_CID_FLASH_CLASS_BASE + 1
)

// Flash LED modes.
const (
	FlashLEDModeNone  = 0
	FlashLEDModeFlash = 1
	FlashLEDModeTorch = 2
)

// Control types.
const (
	CtrlTypeInteger = 1
	CtrlTypeBoolean = 2
	CtrlTypeMenu    = 3
)

// Control flags.
const (
	ctrlFlagDisabled = 0x0001
	ctrlFlagReadOnly = 0x0004
)
