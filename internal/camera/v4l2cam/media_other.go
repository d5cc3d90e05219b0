//go:build !linux

package v4l2cam

import (
	"context"
	"fmt"

	"github.com/starknet/codescan/internal/camera"
)

// MediaDevices reports no cameras on platforms without V4L2.
type MediaDevices struct{}

// New returns a backend with no devices.
func New() *MediaDevices { return &MediaDevices{} }

func (m *MediaDevices) EnumerateDevices(ctx context.Context) ([]camera.DeviceInfo, error) {
	return []camera.DeviceInfo{}, ctx.Err()
}

func (m *MediaDevices) GetUserMedia(_ context.Context, _ camera.Constraints) (camera.Stream, error) {
	return nil, fmt.Errorf("v4l2 capture needs linux: %w", camera.ErrDeviceUnavailable)
}
