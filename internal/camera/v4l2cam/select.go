// Package v4l2cam implements camera.MediaDevices over Video4Linux2 capture
// nodes, reading frames through OpenCV.
package v4l2cam

import (
	"fmt"
	"math"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/devices"
)

// choose maps constraints onto one enumerated node. An exact id must be
// present. An exact environment facing mode needs a back-facing label; an
// ideal one takes the best-ranked node.
func choose(infos []camera.DeviceInfo, c camera.Constraints) (camera.DeviceInfo, error) {
	if c.DeviceID != "" {
		for _, info := range infos {
			if info.DeviceID == c.DeviceID {
				return info, nil
			}
		}
		return camera.DeviceInfo{}, fmt.Errorf("device %s: %w", c.DeviceID, camera.ErrConstraintsUnsatisfiable)
	}
	if len(infos) == 0 {
		return camera.DeviceInfo{}, fmt.Errorf("no video input: %w", camera.ErrDeviceUnavailable)
	}

	ranked := devices.Rank(devices.FromInfo(infos))
	if c.FacingMode == camera.FacingEnvironment {
		for _, d := range ranked {
			if devices.BackFacing(d.Label) {
				return infos[d.Index], nil
			}
		}
	}
	if c.FacingExact {
		return camera.DeviceInfo{}, fmt.Errorf("facing %s: %w", c.FacingMode, camera.ErrConstraintsUnsatisfiable)
	}
	if c.FacingMode == camera.FacingUser {
		return infos[0], nil
	}
	return infos[ranked[0].Index], nil
}

type control int

const (
	ctrlZoom control = iota
	ctrlFocusAuto
	ctrlAutoWhiteBalance
	ctrlTorch
)

func (c control) String() string {
	switch c {
	case ctrlZoom:
		return "zoom"
	case ctrlFocusAuto:
		return "focus_auto"
	case ctrlAutoWhiteBalance:
		return "auto_white_balance"
	case ctrlTorch:
		return "torch"
	}
	return "unknown"
}

// ctrlRange is a control's range as reported by the driver.
type ctrlRange struct {
	min, max, step int32
}

type write struct {
	ctrl  control
	value int32
}

// controlSet is the subset of V4L2 controls a node exposes.
type controlSet map[control]ctrlRange

// zoomUnit is the raw value for a 1x zoom factor. UVC drivers report
// ZOOM_ABSOLUTE in arbitrary units; the minimum is treated as 1x.
func (s controlSet) zoomUnit() float64 {
	r := s[ctrlZoom]
	if r.min > 0 {
		return float64(r.min)
	}
	return 1
}

func (s controlSet) capabilities() camera.Capabilities {
	var caps camera.Capabilities
	if r, ok := s[ctrlZoom]; ok && r.max > r.min {
		unit := s.zoomUnit()
		caps.Zoom = &camera.Range{
			Min:  float64(r.min) / unit,
			Max:  float64(r.max) / unit,
			Step: float64(max(r.step, 1)) / unit,
		}
	}
	if _, ok := s[ctrlFocusAuto]; ok {
		caps.FocusModes = []string{camera.ModeContinuous, camera.ModeManual}
	}
	if _, ok := s[ctrlAutoWhiteBalance]; ok {
		caps.WhiteBalanceModes = []string{camera.ModeContinuous, camera.ModeManual}
	}
	if r, ok := s[ctrlTorch]; ok && r.max >= torchMode {
		caps.Torch = true
	}
	return caps
}

// Flash LED mode values.
const (
	flashNone = 0
	torchMode = 2
)

// writes translates adv into control writes. Any field the node cannot
// honour fails the whole set with camera.ErrUnsupportedCapability.
func (s controlSet) writes(adv camera.Advanced) ([]write, error) {
	caps := s.capabilities()
	var out []write

	if adv.Zoom != nil {
		if caps.Zoom == nil {
			return nil, fmt.Errorf("zoom: %w", camera.ErrUnsupportedCapability)
		}
		z := caps.Zoom.Clamp(*adv.Zoom)
		out = append(out, write{ctrlZoom, int32(math.Round(z * s.zoomUnit()))})
	}
	if adv.FocusMode != "" {
		v, err := autoValue(adv.FocusMode, caps.SupportsFocus(adv.FocusMode))
		if err != nil {
			return nil, fmt.Errorf("focus %s: %w", adv.FocusMode, err)
		}
		out = append(out, write{ctrlFocusAuto, v})
	}
	if adv.WhiteBalanceMode != "" {
		v, err := autoValue(adv.WhiteBalanceMode, caps.SupportsWhiteBalance(adv.WhiteBalanceMode))
		if err != nil {
			return nil, fmt.Errorf("white balance %s: %w", adv.WhiteBalanceMode, err)
		}
		out = append(out, write{ctrlAutoWhiteBalance, v})
	}
	if adv.Torch != nil {
		if !caps.Torch {
			return nil, fmt.Errorf("torch: %w", camera.ErrUnsupportedCapability)
		}
		v := int32(flashNone)
		if *adv.Torch {
			v = torchMode
		}
		out = append(out, write{ctrlTorch, v})
	}
	return out, nil
}

func autoValue(mode string, supported bool) (int32, error) {
	if !supported {
		return 0, camera.ErrUnsupportedCapability
	}
	if mode == camera.ModeContinuous {
		return 1, nil
	}
	return 0, nil
}

// current translates raw control values read from the driver into settings.
// Controls missing from values are left at their zero setting.
func (s controlSet) current(values map[control]int32) camera.Settings {
	var st camera.Settings
	caps := s.capabilities()
	if v, ok := values[ctrlZoom]; ok && caps.Zoom != nil {
		st.Zoom = caps.Zoom.Clamp(float64(v) / s.zoomUnit())
	}
	if v, ok := values[ctrlFocusAuto]; ok {
		st.FocusMode = modeOf(v)
	}
	if v, ok := values[ctrlAutoWhiteBalance]; ok {
		st.WhiteBalanceMode = modeOf(v)
	}
	if v, ok := values[ctrlTorch]; ok && caps.Torch {
		st.Torch = v == torchMode
	}
	return st
}

func modeOf(v int32) string {
	if v != 0 {
		return camera.ModeContinuous
	}
	return camera.ModeManual
}
