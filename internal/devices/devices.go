// Package devices enumerates cameras and ranks them by how likely each one
// is the primary rear lens. Ranking works from labels alone: platforms expose
// no reliable lens metadata.
package devices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/starknet/codescan/internal/camera"
)

// Label weights. Penalties outweigh the back-facing bonus so a rear
// ultra-wide ranks below a plain rear camera.
const (
	backWeight    = 10
	mainWeight    = 2
	penaltyWeight = 15
	frontWeight   = 100
	maxTieBreak   = 3
)

var (
	backKeywords    = []string{"back", "rear", "environment", "trasera", "traseira", "trás"}
	mainKeywords    = []string{"main", "principal"}
	penaltyKeywords = []string{"ultra", "wide", "macro", "depth", "tele", "mono", "tof", "fisheye", "0.5"}
	frontKeywords   = []string{"front", "user", "selfie", "facetime"}
)

// CameraDevice is an enumerated camera with its derived lens-quality score.
// Index is the position in the platform enumeration.
type CameraDevice struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label"`
	Score    int    `json:"score"`
	Index    int    `json:"index"`
}

// Score rates a device label. It is a pure function of the label text.
func Score(label string) int {
	l := strings.ToLower(label)
	score := 0
	for _, kw := range backKeywords {
		if strings.Contains(l, kw) {
			score += backWeight
			break
		}
	}
	for _, kw := range mainKeywords {
		if strings.Contains(l, kw) {
			score += mainWeight
			break
		}
	}
	for _, kw := range penaltyKeywords {
		if strings.Contains(l, kw) {
			score -= penaltyWeight
		}
	}
	for _, kw := range frontKeywords {
		if strings.Contains(l, kw) {
			score -= frontWeight
			break
		}
	}
	return score + min(maxTieBreak, len([]rune(strings.TrimSpace(label)))/10)
}

// BackFacing reports whether label names a rear or environment-facing camera.
func BackFacing(label string) bool {
	l := strings.ToLower(label)
	for _, kw := range backKeywords {
		if strings.Contains(l, kw) {
			return true
		}
	}
	return false
}

// FromInfo scores platform device records, keeping enumeration order.
func FromInfo(infos []camera.DeviceInfo) []CameraDevice {
	out := make([]CameraDevice, len(infos))
	for i, info := range infos {
		out[i] = CameraDevice{
			DeviceID: info.DeviceID,
			Label:    info.Label,
			Score:    Score(info.Label),
			Index:    i,
		}
	}
	return out
}

// Rank returns a copy of devices ordered best first. Equal scores keep
// enumeration order.
func Rank(devices []CameraDevice) []CameraDevice {
	ranked := append([]CameraDevice(nil), devices...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
	return ranked
}

// Labeled reports whether any device carries a label.
func Labeled(devices []CameraDevice) bool {
	for _, d := range devices {
		if strings.TrimSpace(d.Label) != "" {
			return true
		}
	}
	return false
}

// PickDefault returns the best-ranked device. When no device has a label it
// returns the first enumerated one and leaves lens choice to the stream's
// facing-mode fallback. ok is false for an empty list.
func PickDefault(devices []CameraDevice) (CameraDevice, bool) {
	if len(devices) == 0 {
		return CameraDevice{}, false
	}
	if !Labeled(devices) {
		first := devices[0]
		for _, d := range devices[1:] {
			if d.Index < first.Index {
				first = d
			}
		}
		return first, true
	}
	return Rank(devices)[0], true
}

// Find returns the device with id.
func Find(devices []CameraDevice, id string) (CameraDevice, bool) {
	for _, d := range devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return CameraDevice{}, false
}

// ResolvePreferred validates a remembered device id against a fresh list.
// A stale or empty id falls back to PickDefault. fromPreference reports
// whether the remembered id was used.
func ResolvePreferred(devices []CameraDevice, saved string) (dev CameraDevice, fromPreference, ok bool) {
	if saved != "" {
		if d, found := Find(devices, saved); found {
			return d, true, true
		}
	}
	dev, ok = PickDefault(devices)
	return dev, false, ok
}

// Enumerate lists the platform's cameras in enumeration order. The list is
// never cached.
func Enumerate(ctx context.Context, md camera.MediaDevices) ([]CameraDevice, error) {
	infos, err := md.EnumerateDevices(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}
	return FromInfo(infos), nil
}
