//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// GetFormats returns all supported pixel formats for a device.
func GetFormats(devicePath string) ([]FormatInfo, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{
			index: i,
			typ:   v4l2BufTypeVideoCapture,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&desc)); ioctlErr != nil {
			if errors.Is(ioctlErr, syscall.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, ioctlErr)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: desc.pixelformat,
			FormatName:  cstr(desc.description[:]),
			Emulated:    desc.flags&v4l2FmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// GetResolutions returns all supported resolutions for a device and pixel format.
func GetResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); ioctlErr != nil {
			if errors.Is(ioctlErr, syscall.EINVAL) {
				break // End of enumeration
			}
			// ENOTTY means device doesn't support frame size enumeration
			if errors.Is(ioctlErr, syscall.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, ioctlErr)
		}

		switch frmsize.typ {
		case v4l2FrmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case v4l2FrmsizeTypeContinuous, v4l2FrmsizeTypeStepwise:
			stepwise := (*v4l2FrmsizeStepwise)(unsafe.Pointer(&frmsize.discrete))
			return append(resolutions, stepwiseResolutions(stepwise)...), nil
		}
	}

	return resolutions, nil
}

var commonResolutions = []Resolution{
	{320, 240},  // QVGA
	{640, 480},  // VGA
	{800, 600},  // SVGA
	{1024, 768}, // XGA
	{1280, 720}, // HD
	{1280, 960},
	{1280, 1024}, // SXGA
	{1920, 1080}, // Full HD
	{1920, 1200}, // WUXGA
	{2560, 1440}, // QHD
	{3840, 2160}, // 4K UHD
}

// stepwiseResolutions returns common resolutions within a stepwise range.
func stepwiseResolutions(s *v4l2FrmsizeStepwise) []Resolution {
	var resolutions []Resolution
	for _, res := range commonResolutions {
		if res.Width >= s.minWidth && res.Width <= s.maxWidth &&
			res.Height >= s.minHeight && res.Height <= s.maxHeight {
			resolutions = append(resolutions, res)
		}
	}
	return resolutions
}

// NearestResolution picks the resolution closest to width x height. Sizes
// that cover the request are preferred over smaller ones.
func NearestResolution(list []Resolution, width, height uint32) (Resolution, bool) {
	if len(list) == 0 {
		return Resolution{}, false
	}

	best := list[0]
	bestCovers := covers(best, width, height)
	bestDist := distance(best, width, height)
	for _, r := range list[1:] {
		c, d := covers(r, width, height), distance(r, width, height)
		if c && !bestCovers || c == bestCovers && d < bestDist {
			best, bestCovers, bestDist = r, c, d
		}
	}
	return best, true
}

func covers(r Resolution, width, height uint32) bool {
	return r.Width >= width && r.Height >= height
}

func distance(r Resolution, width, height uint32) int64 {
	dw := int64(r.Width) - int64(width)
	dh := int64(r.Height) - int64(height)
	return max(dw, -dw) + max(dh, -dh)
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}
