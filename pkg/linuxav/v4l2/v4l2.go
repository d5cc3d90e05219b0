//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for capture device enumeration, frame size queries and camera controls.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Frame Sizes
//
// Query supported formats and resolutions, then pick the closest match:
//
//	formats, _ := v4l2.GetFormats("/dev/video0")
//	resolutions, _ := v4l2.GetResolutions("/dev/video0", formats[0].PixelFormat)
//	best, ok := v4l2.NearestResolution(resolutions, 1280, 720)
//
// # Camera Controls
//
// Query and change zoom, focus, white balance and the flash LED:
//
//	ctrl, err := v4l2.QueryControl("/dev/video0", v4l2.CIDZoomAbsolute)
//	if err == nil && !ctrl.Disabled() {
//	    _ = v4l2.SetControl("/dev/video0", v4l2.CIDZoomAbsolute, ctrl.Min)
//	}
package v4l2
