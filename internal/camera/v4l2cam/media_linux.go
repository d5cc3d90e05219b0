//go:build linux

package v4l2cam

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"syscall"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/pkg/linuxav/v4l2"
)

// Default capture size when constraints carry no ideal.
const (
	defaultWidth  = 1280
	defaultHeight = 720
)

var controlIDs = map[control]uint32{
	ctrlZoom:             v4l2.CIDZoomAbsolute,
	ctrlFocusAuto:        v4l2.CIDFocusAuto,
	ctrlAutoWhiteBalance: v4l2.CIDAutoWhiteBalance,
	ctrlTorch:            v4l2.CIDFlashLEDMode,
}

// MediaDevices exposes the host's V4L2 capture nodes.
type MediaDevices struct {
	logger *slog.Logger
}

// New returns the Linux camera backend.
func New() *MediaDevices {
	return &MediaDevices{logger: logging.GetLogger("camera")}
}

// EnumerateDevices lists capture nodes. Labels are V4L2 card names and ids
// are stable /dev/v4l/by-id names.
func (m *MediaDevices) EnumerateDevices(ctx context.Context) ([]camera.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := v4l2.FindDevices()
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", camera.ErrPermissionDenied, err)
		}
		return nil, err
	}

	infos := make([]camera.DeviceInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, camera.DeviceInfo{DeviceID: n.DeviceID, Label: n.DeviceName})
	}
	return infos, nil
}

// GetUserMedia opens the node selected by c and starts capturing.
func (m *MediaDevices) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	nodes, err := v4l2.FindDevices()
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", camera.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %w", camera.ErrDeviceUnavailable, err)
	}
	infos := make([]camera.DeviceInfo, len(nodes))
	for i, n := range nodes {
		infos[i] = camera.DeviceInfo{DeviceID: n.DeviceID, Label: n.DeviceName}
	}

	info, err := choose(infos, c)
	if err != nil {
		return nil, err
	}
	var node v4l2.DeviceInfo
	for _, n := range nodes {
		if n.DeviceID == info.DeviceID {
			node = n
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.open(node, c)
	if err != nil {
		return nil, err
	}
	return &mediaStream{id: uuid.NewString(), track: t}, nil
}

func (m *MediaDevices) open(node v4l2.DeviceInfo, c camera.Constraints) (*track, error) {
	if err := checkAccess(node.DevicePath); err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCaptureWithAPI(node.DevicePath, gocv.VideoCaptureV4L2)
	if err != nil || !capture.IsOpened() {
		if capture != nil {
			_ = capture.Close()
		}
		return nil, fmt.Errorf("open %s: %w", node.DevicePath, camera.ErrDeviceUnavailable)
	}

	w, h := frameSize(node.DevicePath, c)
	capture.Set(gocv.VideoCaptureFrameWidth, float64(w))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(h))

	// A busy node opens fine but fails to stream.
	probe := gocv.NewMat()
	defer probe.Close()
	if !capture.Read(&probe) || probe.Empty() {
		_ = capture.Close()
		return nil, fmt.Errorf("start %s: %w", node.DevicePath, camera.ErrDeviceUnavailable)
	}

	controls := queryControls(node.DevicePath)
	settings := controls.current(readControls(node.DevicePath, controls))
	settings.Width = int(capture.Get(gocv.VideoCaptureFrameWidth))
	settings.Height = int(capture.Get(gocv.VideoCaptureFrameHeight))

	t := &track{
		id:       uuid.NewString(),
		node:     node,
		capture:  capture,
		controls: controls,
		logger:   m.logger.With("device", node.DevicePath),
		settings: settings,
	}
	t.logger.Info("Camera opened", "label", node.DeviceName, "width", t.settings.Width, "height", t.settings.Height)
	return t, nil
}

func checkAccess(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %w", camera.ErrPermissionDenied, err)
		default:
			return fmt.Errorf("%w: %w", camera.ErrDeviceUnavailable, err)
		}
	}
	return f.Close()
}

// frameSize picks the supported size closest to the ideal, preferring MJPEG
// formats. Nodes that do not enumerate sizes get the ideal as is.
func frameSize(path string, c camera.Constraints) (int, int) {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}

	formats, err := v4l2.GetFormats(path)
	if err != nil || len(formats) == 0 {
		return w, h
	}
	format := formats[0]
	for _, f := range formats {
		if v4l2.FormatFourCC(f.PixelFormat) == "MJPG" {
			format = f
			break
		}
	}
	sizes, err := v4l2.GetResolutions(path, format.PixelFormat)
	if err != nil {
		return w, h
	}
	if best, ok := v4l2.NearestResolution(sizes, uint32(w), uint32(h)); ok {
		return int(best.Width), int(best.Height)
	}
	return w, h
}

func queryControls(path string) controlSet {
	set := controlSet{}
	for ctrl, id := range controlIDs {
		q, err := v4l2.QueryControl(path, id)
		if err != nil || q.Disabled() || q.ReadOnly() {
			continue
		}
		set[ctrl] = ctrlRange{min: q.Min, max: q.Max, step: q.Step}
	}
	return set
}

// readControls reads the current value of every control in set. Controls
// that fail to read are skipped.
func readControls(path string, set controlSet) map[control]int32 {
	values := make(map[control]int32, len(set))
	for ctrl := range set {
		if v, err := v4l2.GetControl(path, controlIDs[ctrl]); err == nil {
			values[ctrl] = v
		}
	}
	return values
}

type mediaStream struct {
	id    string
	track *track
}

func (s *mediaStream) ID() string                  { return s.id }
func (s *mediaStream) VideoTracks() []camera.Track { return []camera.Track{s.track} }
