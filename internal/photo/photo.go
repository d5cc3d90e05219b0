// Package photo decodes a single still image supplied by the user, for when
// live scanning cannot get a read.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/logging"
)

// ErrUnsupportedImage is returned for data no registered format can read.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

const (
	// DefaultMaxBytes caps the encoded size of a photo.
	DefaultMaxBytes = 32 << 20
	// DefaultMaxPixels caps the decoded size of a photo.
	DefaultMaxPixels = 50_000_000
)

// Decoder runs the decode engine over whole photos.
type Decoder struct {
	engine    *decode.Engine
	bus       *events.Bus
	logger    *slog.Logger
	maxBytes  int64
	maxPixels int
}

// New creates a photo decoder. bus may be nil.
func New(engine *decode.Engine, bus *events.Bus) *Decoder {
	return &Decoder{
		engine:    engine,
		bus:       bus,
		logger:    logging.GetLogger("photo"),
		maxBytes:  DefaultMaxBytes,
		maxPixels: DefaultMaxPixels,
	}
}

// DecodeFile decodes the photo at path.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (decode.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return decode.Result{}, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()
	return d.DecodeReader(ctx, f)
}

// DecodeReader decodes one photo read from r. The whole image is searched,
// with EXIF orientation applied. There is no time budget beyond ctx. A photo
// without a readable code yields decode.ErrNotFound.
func (d *Decoder) DecodeReader(ctx context.Context, r io.Reader) (decode.Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, d.maxBytes+1))
	if err != nil {
		return decode.Result{}, fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return decode.Result{}, fmt.Errorf("%w: larger than %d bytes", ErrUnsupportedImage, d.maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return decode.Result{}, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		return decode.Result{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, d.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return decode.Result{}, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}

	start := time.Now()
	res, err := d.engine.Decode(ctx, img, decode.SourcePhoto)
	if err != nil {
		d.logger.Info("No code found in photo", "format", format,
			"width", cfg.Width, "height", cfg.Height, "elapsed", time.Since(start))
		return decode.Result{}, err
	}

	d.logger.Info("Decoded photo", "format", format, "symbology", res.Symbology, "backend", res.Backend)
	d.bus.Publish(events.CodeDetectedEvent{
		Text:      res.Text,
		Symbology: string(res.Symbology),
		Source:    string(res.Source),
		Backend:   res.Backend,
		Timestamp: res.Timestamp.Format(time.RFC3339),
	})
	return res, nil
}
