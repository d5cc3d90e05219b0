package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/camera/camtest"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/devices"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/frame"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/stream"
)

const hit = 200

// markerLoop decodes only frames painted with the hit marker.
func markerLoop(ctx context.Context, h *stream.Handle) (decode.Result, error) {
	for {
		img, _, err := frame.Get(ctx, h)
		if err != nil {
			return decode.Result{}, err
		}
		if camtest.MarkerOf(img) == hit {
			return decode.Result{Text: "SN-" + h.DeviceID(), Symbology: decode.Code128}, nil
		}
		select {
		case <-ctx.Done():
			return decode.Result{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func setup(t *testing.T, devs ...camtest.Device) (*camtest.MediaDevices, []devices.CameraDevice) {
	t.Helper()
	md := camtest.New(devs...)
	list, err := devices.Enumerate(context.Background(), md)
	if err != nil {
		t.Fatal(err)
	}
	return md, list
}

func collect(bus *events.Bus) (<-chan events.ProbeAttemptEvent, func()) {
	ch := make(chan events.ProbeAttemptEvent, 32)
	unsub := bus.Subscribe(func(e events.ProbeAttemptEvent) { ch <- e })
	return ch, unsub
}

func TestRunSecondCandidateWins(t *testing.T) {
	md, list := setup(t,
		camtest.Device{ID: "a", Label: "Back Camera A"},
		camtest.Device{ID: "b", Label: "Back Camera B", Marker: hit},
		camtest.Device{ID: "c", Label: "Back Camera C", Marker: hit},
	)
	store := prefs.NewMemory()
	bus := events.New()
	attempts, unsub := collect(bus)
	defer unsub()

	p := New(stream.NewManager(md, stream.Options{}), store, bus)
	w, err := p.Run(context.Background(), Request{
		Candidates: list,
		Window:     100 * time.Millisecond,
		Loop:       markerLoop,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer w.Handle.Close()

	if w.Device.DeviceID != "b" || w.Result.Text != "SN-b" {
		t.Errorf("winner = %s (%q), want b", w.Device.DeviceID, w.Result.Text)
	}
	if diff := cmp.Diff([]string{"a", "b"}, md.Opened()); diff != "" {
		t.Errorf("opened devices (-want +got):\n%s", diff)
	}
	if md.LiveTracks() != 1 || w.Handle.Track().ReadyState() != camera.Live {
		t.Errorf("want only the winner live, live tracks = %d", md.LiveTracks())
	}
	if id, _ := store.Get(prefs.KeyPreferredDevice); id != "b" {
		t.Errorf("preferred = %q, want b", id)
	}

	want := []string{"a:opened", "a:timeout", "b:opened", "b:success"}
	var got []string
	for range want {
		select {
		case e := <-attempts:
			got = append(got, e.DeviceID+":"+e.Outcome)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for probe events, got %v", got)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("probe events (-want +got):\n%s", diff)
	}
}

func TestRunExhausted(t *testing.T) {
	md, list := setup(t,
		camtest.Device{ID: "a", Label: "Back Camera"},
		camtest.Device{ID: "busy", Label: "Rear Camera", OpenErr: camera.ErrDeviceUnavailable},
		camtest.Device{ID: "c", Label: "Front Camera"},
	)
	store := prefs.NewMemory()

	p := New(stream.NewManager(md, stream.Options{}), store, nil)
	_, err := p.Run(context.Background(), Request{Candidates: list, Window: 30 * time.Millisecond, Loop: markerLoop})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if md.LiveTracks() != 0 {
		t.Errorf("%d tracks left live", md.LiveTracks())
	}
	if store.Writes() != 0 {
		t.Error("exhausted probe must not save a preference")
	}
	// Equal back and rear weights keep enumeration order; front goes last.
	if diff := cmp.Diff([]string{"a", "busy", "c"}, md.Opened()); diff != "" {
		t.Errorf("probe order (-want +got):\n%s", diff)
	}
}

func TestRunRespectsUserLock(t *testing.T) {
	md, list := setup(t,
		camtest.Device{ID: "a", Label: "Back Camera A"},
		camtest.Device{ID: "b", Label: "Back Camera B", Marker: hit},
	)
	p := New(stream.NewManager(md, stream.Options{}), nil, nil)

	_, err := p.Run(context.Background(), Request{
		Candidates: list,
		Locked:     func() bool { return true },
		Loop:       markerLoop,
	})
	if !errors.Is(err, ErrUserLocked) {
		t.Fatalf("err = %v, want ErrUserLocked", err)
	}
	if len(md.Opened()) != 0 {
		t.Error("locked probe opened a camera")
	}

	// Lock taken while the first candidate is on trial.
	locked := false
	_, err = p.Run(context.Background(), Request{
		Candidates: list,
		Window:     20 * time.Millisecond,
		Locked:     func() bool { return locked },
		Loop: func(ctx context.Context, h *stream.Handle) (decode.Result, error) {
			locked = true
			return markerLoop(ctx, h)
		},
	})
	if !errors.Is(err, ErrUserLocked) {
		t.Fatalf("err = %v, want ErrUserLocked", err)
	}
	if diff := cmp.Diff([]string{"a"}, md.Opened()); diff != "" {
		t.Errorf("opened (-want +got):\n%s", diff)
	}
	if md.LiveTracks() != 0 {
		t.Error("candidate left open after lock")
	}
}

func TestRunExclude(t *testing.T) {
	md, list := setup(t,
		camtest.Device{ID: "a", Label: "Back Camera A", Marker: hit},
		camtest.Device{ID: "b", Label: "Back Camera B", Marker: hit},
	)
	p := New(stream.NewManager(md, stream.Options{}), nil, nil)

	w, err := p.Run(context.Background(), Request{Candidates: list, Exclude: []string{"a"}, Loop: markerLoop})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Handle.Close()
	if w.Device.DeviceID != "b" {
		t.Errorf("winner = %s, want b", w.Device.DeviceID)
	}
}

func TestRunCancelled(t *testing.T) {
	md, list := setup(t, camtest.Device{ID: "a", Label: "Back Camera"})
	p := New(stream.NewManager(md, stream.Options{}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := p.Run(ctx, Request{Candidates: list, Window: time.Minute, Loop: markerLoop})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if md.LiveTracks() != 0 {
		t.Error("cancelled probe left a track live")
	}
}

func TestOrder(t *testing.T) {
	list := devices.FromInfo([]camera.DeviceInfo{
		{DeviceID: "front", Label: "Front Camera"},
		{DeviceID: "wide", Label: "Back Ultra Wide Camera"},
		{DeviceID: "back", Label: "Back Camera"},
	})
	var got []string
	for _, d := range Order(list, []string{"wide"}) {
		got = append(got, d.DeviceID)
	}
	if diff := cmp.Diff([]string{"back", "front"}, got); diff != "" {
		t.Errorf("Order (-want +got):\n%s", diff)
	}
}
