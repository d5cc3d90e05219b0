//go:build linux

// Package hotplug watches kernel uevents over netlink without cgo.
//
// Cameras appear and disappear as video4linux events; the monitor reports
// them so callers can refresh their device lists.
package hotplug

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"path"
	"strings"
	"sync"
	"syscall"
)

// Action constants for device events.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystem names.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemUSB         = "usb"
)

// Event represents a kernel device event.
type Event struct {
	Action    string            // "add", "remove", "change", etc.
	KObj      string            // Kernel object path: /devices/pci0000:00/...
	Subsystem string            // "video4linux", "usb", etc.
	DevType   string            // Device type if available
	DevName   string            // Device name relative to /dev (e.g., "video0")
	DevPath   string            // Sysfs path of the device
	Env       map[string]string // All environment variables from the event
}

// Node returns the /dev path of the event's device node, or "" when the
// event carries no DEVNAME.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return path.Join("/dev", e.DevName)
}

// Monitor listens for kernel device events via netlink.
type Monitor struct {
	fd        int
	filters   map[string]struct{}
	closeOnce sync.Once
	closeErr  error
}

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = 15

// NewMonitor opens a uevent socket. Only events from the given subsystems
// are delivered; with none, every event passes.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &syscall.SockaddrNetlink{
		Family: syscall.AF_NETLINK,
		Groups: 1, // Kernel broadcast group
	}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	// Read timeout so Run can notice cancellation.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	filters := make(map[string]struct{}, len(subsystems))
	for _, s := range subsystems {
		filters[s] = struct{}{}
	}
	return &Monitor{fd: fd, filters: filters}, nil
}

// Matches reports whether the monitor's filter admits e.
func (m *Monitor) Matches(e Event) bool {
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[e.Subsystem]
	return ok
}

// Close releases the socket. It is safe to call more than once.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = syscall.Close(m.fd)
	})
	return m.closeErr
}

// Run sends matching events until ctx is cancelled or the socket fails.
// The events channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || !m.Matches(*event) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0...". Messages rebroadcast by
// libudev carry a binary header which is skipped; when they have no
// ACTION@KOBJ line the ACTION and DEVPATH properties are used instead.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}

	if bytes.HasPrefix(data, []byte(libudevPrefix)) {
		data = libudevPayload(data)
	}

	parts := bytes.Split(data, []byte{0})
	action, kobj, ok := cutHeader(parts[0])
	props := parts[1:]
	if !ok {
		props = parts
	}

	event := &Event{
		Action: action,
		KObj:   kobj,
		Env:    make(map[string]string),
	}

	for _, part := range props {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVTYPE":
			event.DevType = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}

	if event.Action == "" {
		event.Action = event.Env["ACTION"]
	}
	if event.KObj == "" {
		event.KObj = event.Env["DEVPATH"]
	}
	if event.Action == "" {
		return nil
	}
	return event
}

const (
	libudevPrefix = "libudev\x00"
	libudevMagic  = 0xfeedcafe
	// prefix, magic, header size, properties offset, properties length
	libudevMinHeader = 24
)

// libudevPayload returns the part of a libudev message after its binary
// header. The properties offset is used when the header is intact; otherwise
// the first NUL-separated segment that reads as ACTION@KOBJ starts the
// payload. The prefix alone yields nil.
func libudevPayload(data []byte) []byte {
	if len(data) >= libudevMinHeader && binary.BigEndian.Uint32(data[8:12]) == libudevMagic {
		off := uint64(binary.NativeEndian.Uint32(data[16:20]))
		n := uint64(binary.NativeEndian.Uint32(data[20:24]))
		if off >= libudevMinHeader && off+n <= uint64(len(data)) {
			return data[off : off+n]
		}
	}

	rest := data[len(libudevPrefix):]
	for len(rest) > 0 {
		seg, tail, _ := bytes.Cut(rest, []byte{0})
		if _, _, ok := cutHeader(seg); ok {
			return rest
		}
		rest = tail
	}
	return nil
}

// cutHeader splits an ACTION@KOBJ line. The action must be a lower-case word.
func cutHeader(line []byte) (action, kobj string, ok bool) {
	a, k, found := bytes.Cut(line, []byte("@"))
	if !found || len(a) == 0 {
		return "", "", false
	}
	for _, c := range a {
		if c < 'a' || c > 'z' {
			return "", "", false
		}
	}
	return string(a), string(k), true
}
