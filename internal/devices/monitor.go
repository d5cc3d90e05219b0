package devices

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/logging"
)

// Monitor publishes DeviceDiscoveryEvents by diffing successive enumerations.
// Rescans are driven by kernel hot-plug notifications where available and by
// a poll interval elsewhere.
type Monitor struct {
	md     camera.MediaDevices
	bus    *events.Bus
	logger *slog.Logger

	// settle delays the rescan after an add so the kernel can finish
	// registering the node.
	settle time.Duration
	poll   time.Duration

	mu    sync.Mutex
	known map[string]camera.DeviceInfo
}

// NewMonitor creates a monitor for md publishing to bus.
func NewMonitor(md camera.MediaDevices, bus *events.Bus) *Monitor {
	return &Monitor{
		md:     md,
		bus:    bus,
		logger: logging.GetLogger("devices"),
		settle: 500 * time.Millisecond,
		poll:   2 * time.Second,
		known:  make(map[string]camera.DeviceInfo),
	}
}

// Rescan enumerates once and publishes every added or removed device.
// The first call seeds the known set and reports all devices as added.
func (m *Monitor) Rescan(ctx context.Context) error {
	infos, err := m.md.EnumerateDevices(ctx)
	if err != nil {
		return err
	}

	now := time.Now().Format(time.RFC3339)
	current := make(map[string]camera.DeviceInfo, len(infos))
	for _, info := range infos {
		current[info.DeviceID] = info
	}

	m.mu.Lock()
	var changes []events.DeviceDiscoveryEvent
	for _, info := range infos {
		if _, ok := m.known[info.DeviceID]; !ok {
			changes = append(changes, events.DeviceDiscoveryEvent{
				DeviceID: info.DeviceID, Label: info.Label, Action: events.ActionAdded, Timestamp: now,
			})
		}
	}
	for id, info := range m.known {
		if _, ok := current[id]; !ok {
			changes = append(changes, events.DeviceDiscoveryEvent{
				DeviceID: id, Label: info.Label, Action: events.ActionRemoved, Timestamp: now,
			})
		}
	}
	m.known = current
	m.mu.Unlock()

	for _, ev := range changes {
		m.logger.Info("Camera "+ev.Action, "device_id", ev.DeviceID, "label", ev.Label)
		m.bus.Publish(ev)
	}
	return nil
}

// Known returns the devices seen by the last rescan.
func (m *Monitor) Known() []camera.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]camera.DeviceInfo, 0, len(m.known))
	for _, info := range m.known {
		out = append(out, info)
	}
	return out
}

// Run rescans until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Rescan(ctx); err != nil {
		m.logger.Warn("Initial camera enumeration failed", "error", err)
	}
	return m.watch(ctx)
}

func (m *Monitor) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Rescan(ctx); err != nil {
				m.logger.Debug("Camera rescan failed", "error", err)
			}
		}
	}
}
