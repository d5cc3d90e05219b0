package frame

import (
	"context"
	"errors"
	"image"

	"github.com/starknet/codescan/internal/camera"
)

// Kind tells where a frame came from.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindLive     Kind = "live"
)

// Provider exposes an open stream's track and, when the track supports it,
// its still-image capturer. Capturer is resolved once when the stream opens.
type Provider interface {
	Track() camera.Track
	Capturer() camera.ImageCapturer
}

// Get returns the best available frame: a full-resolution snapshot where
// supported, otherwise the live video frame. A failed snapshot falls back to
// the live frame unless the track has ended.
func Get(ctx context.Context, p Provider) (image.Image, Kind, error) {
	track := p.Track()
	if track == nil {
		return nil, "", camera.ErrTrackEnded
	}

	if c := p.Capturer(); c != nil {
		img, err := c.GrabFrame(ctx)
		switch {
		case err == nil && img != nil:
			return img, KindSnapshot, nil
		case errors.Is(err, camera.ErrTrackEnded), ctx.Err() != nil:
			return nil, "", errOr(err, ctx.Err())
		}
	}

	img, err := track.ReadFrame(ctx)
	if err != nil {
		return nil, "", err
	}
	if img == nil {
		return nil, "", ErrNoFrame
	}
	return img, KindLive, nil
}

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
