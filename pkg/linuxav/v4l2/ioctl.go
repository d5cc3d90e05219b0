//go:build linux

package v4l2

import (
	"errors"
	"syscall"
	"unsafe"
)

// ioctl retries requests interrupted by a signal.
func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		switch {
		case errno == 0:
			return nil
		case errors.Is(errno, syscall.EINTR):
			continue
		default:
			return errno
		}
	}
}

func open(path string) (int, error) {
	return syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
}

func close(fd int) error {
	return syscall.Close(fd)
}
