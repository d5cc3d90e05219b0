// Package frame obtains decodable images from a live track and crops them to
// a region of interest.
package frame

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var (
	// ErrInvalidROI means the margins are out of range or leave no pixels.
	ErrInvalidROI = errors.New("invalid region of interest")
	// ErrNoFrame means the track delivered no image.
	ErrNoFrame = errors.New("no frame available")
)

// floorEpsilon absorbs binary representation error in decimal fractions,
// so 0.35*1000 floors to 350 rather than 349.
const floorEpsilon = 1e-9

// ROI is a region of interest given as fractional margins cut from each
// edge of the frame.
type ROI struct {
	Top    float64 `json:"top" toml:"top"`
	Bottom float64 `json:"bottom" toml:"bottom"`
	Left   float64 `json:"left" toml:"left"`
	Right  float64 `json:"right" toml:"right"`
}

// DefaultROI is a wide, short horizontal band matching 1D barcodes.
var DefaultROI = ROI{Top: 0.35, Bottom: 0.35, Left: 0.10, Right: 0.10}

// Full keeps the whole frame.
var Full = ROI{}

// Validate checks every margin is in [0,1) and opposite margins leave a band.
func (r ROI) Validate() error {
	for _, m := range []float64{r.Top, r.Bottom, r.Left, r.Right} {
		if math.IsNaN(m) || m < 0 || m >= 1 {
			return fmt.Errorf("%w: margin %v outside [0,1)", ErrInvalidROI, m)
		}
	}
	if r.Top+r.Bottom >= 1 || r.Left+r.Right >= 1 {
		return fmt.Errorf("%w: margins %+v leave no area", ErrInvalidROI, r)
	}
	return nil
}

// Rect converts the ROI to pixel coordinates within bounds. Each margin is
// floor(fraction * dimension) pixels, measured inward from its own edge:
//
//	Min.X = bounds.Min.X + floor(Left * W)
//	Max.X = bounds.Max.X - floor(Right * W)
//
// and likewise for Y. A 1000x1000 frame with the default ROI yields
// (100,350)-(900,650): 800x300, horizontally centered.
func (r ROI) Rect(bounds image.Rectangle) (image.Rectangle, error) {
	if err := r.Validate(); err != nil {
		return image.Rectangle{}, err
	}
	w, h := bounds.Dx(), bounds.Dy()
	rect := image.Rect(
		bounds.Min.X+floorPx(r.Left, w),
		bounds.Min.Y+floorPx(r.Top, h),
		bounds.Max.X-floorPx(r.Right, w),
		bounds.Max.Y-floorPx(r.Bottom, h),
	)
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d frame leaves an empty region", ErrInvalidROI, w, h)
	}
	return rect, nil
}

func floorPx(frac float64, dim int) int {
	return int(math.Floor(frac*float64(dim) + floorEpsilon))
}

// CropROI returns the ROI of img as a new image whose bounds start at (0,0).
// The full ROI returns img unchanged.
func CropROI(img image.Image, roi ROI) (image.Image, error) {
	if img == nil {
		return nil, ErrNoFrame
	}
	if roi == Full {
		return img, nil
	}
	rect, err := roi.Rect(img.Bounds())
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, rect), nil
}
