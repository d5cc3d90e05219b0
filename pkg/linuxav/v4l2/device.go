//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"unsafe"
)

const (
	sysfsVideoDir = "/sys/class/video4linux"
	byIDDir       = "/dev/v4l/by-id"
)

// ErrDeviceNotFound is returned when no capture device carries the requested ID.
var ErrDeviceNotFound = errors.New("v4l2: device not found")

// FindDevices finds all V4L2 video capture devices on the system.
// When nodes exist but every one of them refuses access, the returned error
// wraps fs.ErrPermission.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsVideoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	logger := slog.With("component", "linuxav")
	devices := []DeviceInfo{}
	denied, tried := 0, 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		tried++

		devicePath := "/dev/" + entry.Name()
		caps, err := queryCapability(devicePath)
		if err != nil {
			if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
				denied++
			}
			logger.Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}

		effective := caps.capabilities
		if effective&v4l2CapDeviceCaps != 0 {
			effective = caps.deviceCaps
		}
		if effective&v4l2CapVideoCapture == 0 {
			continue
		}

		index := readSysfsInt(filepath.Join(sysfsVideoDir, entry.Name(), "index"))
		stableID := findStableID(entry.Name(), index)
		if stableID == "" {
			busInfo := cstr(caps.busInfo[:])
			if strings.HasPrefix(busInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", busInfo, index)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(caps.card[:]),
			DeviceID:   stableID,
			Caps:       effective,
		})
	}

	if len(devices) == 0 && tried > 0 && denied == tried {
		return nil, fmt.Errorf("v4l2: no accessible video nodes: %w", fs.ErrPermission)
	}
	return devices, nil
}

// DevicePathByID finds the device path for a given stable device ID.
func DevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", err
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, index int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	suffix := fmt.Sprintf("-video-index%d", index)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), suffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func queryCapability(devicePath string) (*v4l2Capability, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, err
	}
	defer close(fd)

	caps := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(caps)); err != nil {
		return nil, err
	}
	return caps, nil
}
