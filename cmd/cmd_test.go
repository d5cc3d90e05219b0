package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/camera/camtest"
	"github.com/starknet/codescan/internal/config"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/frame"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/scanner"
)

func init() {
	color.NoColor = true
}

const hit = 77

type markerBackend struct{}

func (markerBackend) Descriptor() decode.Descriptor {
	return decode.Descriptor{Name: "marker", Symbologies: decode.LinearSymbologies}
}

func (markerBackend) Detect(_ context.Context, img image.Image) (*decode.Result, error) {
	if camtest.MarkerOf(img) != hit {
		return nil, nil
	}
	return &decode.Result{Text: "96385074", Symbology: decode.EAN8}, nil
}

func newController(t *testing.T, devs ...camtest.Device) *scanner.Controller {
	t.Helper()
	ctrl := scanner.New(scanner.Deps{
		Devices: camtest.New(devs...),
		Engine:  decode.NewEngine([]decode.Backend{markerBackend{}}, decode.AllowList(false)),
		Prefs:   prefs.NewMemory(),
	}, scanner.Options{Interval: 50 * time.Millisecond, ROI: frame.DefaultROI, TrialWindow: 500 * time.Millisecond})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func TestListDevices(t *testing.T) {
	md := camtest.New(
		camtest.Device{ID: "front", Label: "Front Camera"},
		camtest.Device{ID: "wide", Label: "Back Ultra Wide Camera"},
		camtest.Device{ID: "back", Label: "Back Camera"},
	)
	store := prefs.NewMemory()
	if err := store.Set(prefs.KeyPreferredDevice, "wide"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := listDevices(context.Background(), &buf, md, store); err != nil {
		t.Fatalf("listDevices: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[back]") {
		t.Errorf("first line = %q, want the back camera", lines[0])
	}
	if !strings.Contains(lines[1], "[wide]") || !strings.Contains(lines[1], "default") || !strings.Contains(lines[1], "preferred") {
		t.Errorf("second line = %q, want wide marked default and preferred", lines[1])
	}
	if !strings.Contains(lines[2], "[front]") {
		t.Errorf("last line = %q, want the front camera", lines[2])
	}
}

func TestListDevicesStalePreference(t *testing.T) {
	md := camtest.New(camtest.Device{ID: "back", Label: "Back Camera"})
	store := prefs.NewMemory()
	_ = store.Set(prefs.KeyPreferredDevice, "gone")

	var buf bytes.Buffer
	if err := listDevices(context.Background(), &buf, md, store); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "default") || strings.Contains(out, "preferred") {
		t.Errorf("unexpected markers:\n%s", out)
	}
	if !strings.Contains(out, "gone is not connected") {
		t.Errorf("missing stale preference note:\n%s", out)
	}
}

func TestListDevicesEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := listDevices(context.Background(), &buf, camtest.New(), prefs.NewMemory()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no cameras found") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestListDevicesEnumerateError(t *testing.T) {
	md := camtest.New()
	md.SetEnumerateError(camera.ErrPermissionDenied)
	err := listDevices(context.Background(), &bytes.Buffer{}, md, prefs.NewMemory())
	if !errors.Is(err, camera.ErrPermissionDenied) {
		t.Errorf("err = %v, want permission denied", err)
	}
}

func TestScanOnce(t *testing.T) {
	ctrl := newController(t, camtest.Device{ID: "back", Label: "Back Camera", Marker: hit})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := scanOnce(ctx, ctrl, scanner.StartOptions{}, false)
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if res.Text != "96385074" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestScanOnceProbe(t *testing.T) {
	ctrl := newController(t,
		camtest.Device{ID: "back", Label: "Back Camera"},
		camtest.Device{ID: "usb", Label: "USB Camera", Marker: hit},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	res, err := scanOnce(ctx, ctrl, scanner.StartOptions{}, true)
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if res.Text != "96385074" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestScanOnceTimeout(t *testing.T) {
	ctrl := newController(t, camtest.Device{ID: "back", Label: "Back Camera"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := scanOnce(ctx, ctrl, scanner.StartOptions{}, false)
	if !errors.Is(err, errScanTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if state := ctrl.Status().State; state == scanner.StateRunning {
		t.Errorf("controller still running after timeout")
	}
}

func TestScanOnceSessionError(t *testing.T) {
	ctrl := newController(t, camtest.Device{ID: "back", Label: "Back Camera", OpenErr: camera.ErrPermissionDenied})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := scanOnce(ctx, ctrl, scanner.StartOptions{}, false)

	var se *scanner.SessionError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want a session error", err)
	}
	if se.Code != scanner.ErrCodePermissionDenied {
		t.Errorf("code = %s", se.Code)
	}
}

func TestNewEngine(t *testing.T) {
	logger := logging.GetLogger("test")

	cfg := config.DefaultScanner()
	cfg.Backends = []string{decode.BackendZXing, decode.BackendLowLight}
	engine, err := NewEngine(cfg, logger)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if got := len(engine.Descriptors()); got != 2 {
		t.Errorf("descriptors = %d, want 2", got)
	}
	if engine.Allowed(decode.QRCode) {
		t.Error("QR allowed without enable_qr")
	}

	cfg.Backends = []string{"bogus"}
	if _, err := NewEngine(cfg, logger); err == nil {
		t.Error("unknown backend accepted")
	}
}
