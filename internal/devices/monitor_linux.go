//go:build linux

package devices

import (
	"context"
	"time"

	"github.com/starknet/codescan/pkg/linuxav/hotplug"
)

// watch rescans on video4linux uevents, falling back to polling when the
// netlink socket cannot be opened (for example inside some containers).
func (m *Monitor) watch(ctx context.Context) error {
	mon, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		m.logger.Warn("Hot-plug monitor unavailable, polling instead", "error", err)
		return m.pollLoop(ctx)
	}
	defer mon.Close()

	uevents := make(chan hotplug.Event, 16)
	errc := make(chan error, 1)
	go func() { errc <- mon.Run(ctx, uevents) }()

	m.logger.Info("Camera hot-plug monitoring started")
	for {
		select {
		case ev, ok := <-uevents:
			if !ok {
				return <-errc
			}
			m.logger.Debug("Video uevent", "action", ev.Action, "node", ev.Node())
			switch ev.Action {
			case hotplug.ActionAdd:
				select {
				case <-time.After(m.settle):
				case <-ctx.Done():
					return ctx.Err()
				}
			case hotplug.ActionRemove:
			default:
				continue
			}
			if err := m.Rescan(ctx); err != nil {
				m.logger.Debug("Camera rescan failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
