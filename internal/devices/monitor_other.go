//go:build !linux

package devices

import "context"

func (m *Monitor) watch(ctx context.Context) error {
	return m.pollLoop(ctx)
}
