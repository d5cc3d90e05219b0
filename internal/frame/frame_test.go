package frame

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/camera/camtest"
)

func TestDefaultROIOn1000Square(t *testing.T) {
	got, err := DefaultROI.Rect(image.Rect(0, 0, 1000, 1000))
	if err != nil {
		t.Fatal(err)
	}
	want := image.Rect(100, 350, 900, 650)
	if got != want {
		t.Fatalf("Rect = %v, want %v", got, want)
	}
	if got.Dx() != 800 || got.Dy() != 300 {
		t.Errorf("size = %dx%d, want 800x300", got.Dx(), got.Dy())
	}
	if left, right := got.Min.X, 1000-got.Max.X; left != right {
		t.Errorf("not horizontally centered: left %d, right %d", left, right)
	}
}

func TestRectFloorArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		roi    ROI
		bounds image.Rectangle
		want   image.Rectangle
	}{
		{
			// floor(0.35*999)=349, floor(0.10*999)=99
			name:   "odd dimensions",
			roi:    DefaultROI,
			bounds: image.Rect(0, 0, 999, 999),
			want:   image.Rect(99, 349, 900, 650),
		},
		{
			// floor(0.35*720)=252, floor(0.10*1280)=128
			name:   "720p",
			roi:    DefaultROI,
			bounds: image.Rect(0, 0, 1280, 720),
			want:   image.Rect(128, 252, 1152, 468),
		},
		{
			name:   "offset bounds",
			roi:    DefaultROI,
			bounds: image.Rect(50, 20, 1050, 1020),
			want:   image.Rect(150, 370, 950, 670),
		},
		{
			name:   "asymmetric margins",
			roi:    ROI{Top: 0.1, Bottom: 0.2, Left: 0.25, Right: 0},
			bounds: image.Rect(0, 0, 10, 10),
			want:   image.Rect(2, 1, 10, 8),
		},
		{
			name:   "no margins",
			roi:    Full,
			bounds: image.Rect(0, 0, 7, 3),
			want:   image.Rect(0, 0, 7, 3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.roi.Rect(tt.bounds)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Rect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRectInvalid(t *testing.T) {
	tests := []ROI{
		{Top: -0.1},
		{Left: 1},
		{Top: 0.5, Bottom: 0.5},
		{Left: 0.6, Right: 0.4},
	}
	for _, roi := range tests {
		if _, err := roi.Rect(image.Rect(0, 0, 100, 100)); !errors.Is(err, ErrInvalidROI) {
			t.Errorf("Rect(%+v) err = %v, want ErrInvalidROI", roi, err)
		}
	}

	if _, err := DefaultROI.Rect(image.Rectangle{}); !errors.Is(err, ErrInvalidROI) {
		t.Errorf("empty frame err = %v, want ErrInvalidROI", err)
	}
	// Floors never consume a whole dimension, so even a 1x1 frame keeps a pixel.
	if r, err := DefaultROI.Rect(image.Rect(0, 0, 1, 1)); err != nil || r.Dx() != 1 || r.Dy() != 1 {
		t.Errorf("1x1 frame = %v, %v", r, err)
	}
}

func TestCropROIPixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1000, 1000))
	red := color.NRGBA{R: 255, A: 255}
	src.Set(100, 350, red)
	src.Set(899, 649, red)

	got, err := CropROI(src, DefaultROI)
	if err != nil {
		t.Fatal(err)
	}
	if b := got.Bounds(); b != image.Rect(0, 0, 800, 300) {
		t.Fatalf("bounds = %v, want (0,0)-(800,300)", b)
	}
	if c := color.NRGBAModel.Convert(got.At(0, 0)); c != red {
		t.Errorf("top-left = %v, want first ROI pixel", c)
	}
	if c := color.NRGBAModel.Convert(got.At(799, 299)); c != red {
		t.Errorf("bottom-right = %v, want last ROI pixel", c)
	}

	if _, err := CropROI(nil, DefaultROI); !errors.Is(err, ErrNoFrame) {
		t.Errorf("nil frame err = %v", err)
	}
}

type provider struct {
	track    camera.Track
	capturer camera.ImageCapturer
}

func (p provider) Track() camera.Track            { return p.track }
func (p provider) Capturer() camera.ImageCapturer { return p.capturer }

func openTrack(t *testing.T, d camtest.Device) camera.Track {
	t.Helper()
	md := camtest.New(d)
	s, err := md.GetUserMedia(context.Background(), camera.Constraints{DeviceID: d.ID})
	if err != nil {
		t.Fatal(err)
	}
	return s.VideoTracks()[0]
}

func TestGetPrefersSnapshot(t *testing.T) {
	track := openTrack(t, camtest.Device{ID: "a", Marker: 9, Snapshot: true})
	snap, ok := track.(*camtest.SnapshotTrack)
	if !ok {
		t.Fatalf("track %T does not support snapshots", track)
	}

	img, kind, err := Get(context.Background(), provider{track: track, capturer: snap})
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindSnapshot || camtest.MarkerOf(img) != 9 {
		t.Errorf("kind=%s marker=%d", kind, camtest.MarkerOf(img))
	}
	if snap.Grabs() != 1 {
		t.Errorf("grabs = %d, want 1", snap.Grabs())
	}
}

func TestGetLiveFallback(t *testing.T) {
	track := openTrack(t, camtest.Device{ID: "a", Marker: 7})
	img, kind, err := Get(context.Background(), provider{track: track})
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindLive || camtest.MarkerOf(img) != 7 {
		t.Errorf("kind=%s marker=%d", kind, camtest.MarkerOf(img))
	}

	track.Stop()
	if _, _, err := Get(context.Background(), provider{track: track}); !errors.Is(err, camera.ErrTrackEnded) {
		t.Errorf("ended track err = %v", err)
	}
}

type failingCapturer struct{}

func (failingCapturer) GrabFrame(context.Context) (image.Image, error) {
	return nil, errors.New("grab failed")
}

func TestGetSnapshotErrorFallsBackToLive(t *testing.T) {
	track := openTrack(t, camtest.Device{ID: "a", Marker: 3})
	_, kind, err := Get(context.Background(), provider{track: track, capturer: failingCapturer{}})
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindLive {
		t.Errorf("kind = %s, want live", kind)
	}
}
