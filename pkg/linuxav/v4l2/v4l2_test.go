//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		expected string
	}{
		{"YUYV format", v4l2PixFmtYUYV, "YUYV"},
		{"MJPEG format", v4l2PixFmtMJPEG, "MJPG"},
		{"NV12 format", v4l2PixFmtNV12, "NV12"},
		{"null bytes", 0x00000000, "\x00\x00\x00\x00"},
		{"mixed bytes", 0x01020304, "\x04\x03\x02\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFourCC(tt.format)
			if result != tt.expected {
				t.Errorf("FormatFourCC(0x%08X) = %q, want %q", tt.format, result, tt.expected)
			}
		})
	}
}

func TestNearestResolution(t *testing.T) {
	list := []Resolution{{640, 480}, {1280, 720}, {1920, 1080}, {3840, 2160}}

	tests := []struct {
		name   string
		list   []Resolution
		w, h   uint32
		want   Resolution
		wantOK bool
	}{
		{"exact match", list, 1280, 720, Resolution{1280, 720}, true},
		{"prefers covering size", list, 1300, 700, Resolution{1920, 1080}, true},
		{"larger than all falls back to closest", list, 5000, 3000, Resolution{3840, 2160}, true},
		{"small request", list, 320, 240, Resolution{640, 480}, true},
		{"empty list", nil, 1280, 720, Resolution{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NearestResolution(tt.list, tt.w, tt.h)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NearestResolution(%dx%d) = %v, %v; want %v, %v", tt.w, tt.h, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStepwiseResolutions(t *testing.T) {
	s := &v4l2FrmsizeStepwise{minWidth: 640, maxWidth: 1920, minHeight: 480, maxHeight: 1080}
	got := stepwiseResolutions(s)
	if len(got) == 0 {
		t.Fatal("expected resolutions within range")
	}
	for _, r := range got {
		if r.Width < 640 || r.Width > 1920 || r.Height < 480 || r.Height > 1080 {
			t.Errorf("resolution %v outside stepwise range", r)
		}
	}
}

func TestControlErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unsupported bool
	}{
		{"EINVAL is unsupported", syscall.EINVAL, true},
		{"ENOTTY is unsupported", syscall.ENOTTY, true},
		{"ERANGE is passed through", syscall.ERANGE, false},
		{"EBUSY is passed through", syscall.EBUSY, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := controlErr(CIDZoomAbsolute, tt.err)
			if errors.Is(err, ErrUnsupported) != tt.unsupported {
				t.Errorf("errors.Is(%v, ErrUnsupported) = %v, want %v", err, !tt.unsupported, tt.unsupported)
			}
			if !tt.unsupported && !errors.Is(err, tt.err) {
				t.Errorf("expected %v to wrap %v", err, tt.err)
			}
		})
	}
}

func TestControlFlags(t *testing.T) {
	c := Control{Flags: ctrlFlagDisabled | ctrlFlagReadOnly}
	if !c.Disabled() || !c.ReadOnly() {
		t.Errorf("flags %#x not decoded", c.Flags)
	}
	if (Control{}).Disabled() {
		t.Error("zero control reported disabled")
	}
}

func TestDevicePathByIDNotFound(t *testing.T) {
	_, err := DevicePathByID(fmt.Sprintf("missing-%d", syscall.Getpid()))
	if err == nil {
		t.Fatal("expected error for unknown id")
	}
	// Hosts without accessible nodes report a permission error instead.
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Logf("lookup failed with %v", err)
	}
}
