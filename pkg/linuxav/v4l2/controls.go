//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// QueryControl describes control id on the device at devicePath.
// ErrUnsupported is returned when the driver does not know the control.
func QueryControl(devicePath string, id uint32) (Control, error) {
	fd, err := open(devicePath)
	if err != nil {
		return Control{}, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)
	return queryControl(fd, id)
}

func queryControl(fd int, id uint32) (Control, error) {
	q := v4l2Queryctrl{id: id}
	if err := ioctl(fd, vidiocQueryctrl, unsafe.Pointer(&q)); err != nil {
		return Control{}, controlErr(id, err)
	}
	return Control{
		ID:      q.id,
		Name:    cstr(q.name[:]),
		Type:    q.typ,
		Min:     q.minimum,
		Max:     q.maximum,
		Step:    q.step,
		Default: q.defaultValue,
		Flags:   q.flags,
	}, nil
}

// GetControl reads the current value of control id.
func GetControl(devicePath string, id uint32) (int32, error) {
	fd, err := open(devicePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	c := v4l2Control{id: id}
	if err := ioctl(fd, vidiocGCtrl, unsafe.Pointer(&c)); err != nil {
		return 0, controlErr(id, err)
	}
	return c.value, nil
}

// SetControl writes value to control id. Values outside the control's
// range are rejected by the driver with ERANGE.
func SetControl(devicePath string, id uint32, value int32) error {
	fd, err := open(devicePath)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	c := v4l2Control{id: id, value: value}
	if err := ioctl(fd, vidiocSCtrl, unsafe.Pointer(&c)); err != nil {
		return controlErr(id, err)
	}
	return nil
}

func controlErr(id uint32, err error) error {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("%w: 0x%08x", ErrUnsupported, id)
	}
	return fmt.Errorf("control 0x%08x: %w", id, err)
}
