package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starknet/codescan/internal/api/models"
	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/camera/camtest"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/frame"
	"github.com/starknet/codescan/internal/photo"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/scanner"
)

const hit = 200

// markerBackend reads a code from frames painted with the hit marker.
type markerBackend struct{}

func (markerBackend) Descriptor() decode.Descriptor {
	return decode.Descriptor{Name: "marker", Symbologies: decode.LinearSymbologies}
}

func (markerBackend) Detect(_ context.Context, img image.Image) (*decode.Result, error) {
	if camtest.MarkerOf(img) != hit {
		return nil, nil
	}
	return &decode.Result{Text: "4006381333931", Symbology: decode.EAN13}, nil
}

type fakePhoto struct {
	res decode.Result
	err error
	got []byte
}

func (f *fakePhoto) DecodeReader(_ context.Context, r io.Reader) (decode.Result, error) {
	f.got, _ = io.ReadAll(r)
	return f.res, f.err
}

type testEnv struct {
	md     *camtest.MediaDevices
	store  *prefs.Memory
	bus    *events.Bus
	ctrl   *scanner.Controller
	photo  *fakePhoto
	server *Server
}

func newTestEnv(t *testing.T, opts *Options, devs ...camtest.Device) *testEnv {
	t.Helper()
	env := &testEnv{
		md:    camtest.New(devs...),
		store: prefs.NewMemory(),
		bus:   events.New(),
		photo: &fakePhoto{},
	}
	env.ctrl = scanner.New(scanner.Deps{
		Devices: env.md,
		Engine:  decode.NewEngine([]decode.Backend{markerBackend{}}, decode.AllowList(false)),
		Prefs:   env.store,
		Bus:     env.bus,
	}, scanner.Options{Interval: 50 * time.Millisecond, ROI: frame.DefaultROI})
	t.Cleanup(env.ctrl.Close)

	if opts == nil {
		opts = &Options{}
	}
	opts.Devices = env.md
	opts.Prefs = env.store
	opts.Scanner = env.ctrl
	opts.Photo = env.photo
	opts.Bus = env.bus
	env.server = NewServer(opts)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" && !strings.HasPrefix(path, photoDecodePath) {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := decodeBody[models.HealthData](t, rec); got.Status != "ok" {
		t.Errorf("health = %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("version status = %d", rec.Code)
	}
	if got := decodeBody[models.VersionData](t, rec); got.GoVersion == "" || got.Platform == "" {
		t.Errorf("version = %+v", got)
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, &Options{AuthUsername: "admin", AuthPassword: "secret"})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing credentials", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Bearer token", "", http.StatusUnauthorized},
		{"bad base64", "Basic !!!", "", http.StatusUnauthorized},
		{"wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), "", http.StatusUnauthorized},
		{"valid header", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret")), "", http.StatusOK},
		{"valid query", "", "?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, scannerStatusPath+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health must not need auth, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodOptions, "/api/scanner/start", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS origin header: %v", rec.Header())
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t, nil,
		camtest.Device{ID: "front", Label: "Front Camera"},
		camtest.Device{ID: "wide", Label: "Back Ultra Wide Camera"},
		camtest.Device{ID: "back", Label: "Back Camera"},
	)
	if err := env.store.Set(prefs.KeyPreferredDevice, "wide"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	got := decodeBody[models.DeviceListData](t, rec)
	if got.Count != 3 || got.Devices[0].DeviceID != "back" {
		t.Fatalf("devices = %+v", got.Devices)
	}
	for _, d := range got.Devices {
		if d.Preferred != (d.DeviceID == "wide") {
			t.Errorf("%s preferred = %v", d.DeviceID, d.Preferred)
		}
		if d.Default != (d.DeviceID == "wide") {
			t.Errorf("%s default = %v; the remembered device is the default", d.DeviceID, d.Default)
		}
	}
}

func TestListDevicesPermissionDenied(t *testing.T) {
	env := newTestEnv(t, nil)
	env.md.SetEnumerateError(camera.ErrPermissionDenied)

	if rec := env.do(t, http.MethodGet, "/api/devices", ""); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestSelectDevice(t *testing.T) {
	env := newTestEnv(t, nil,
		camtest.Device{ID: "back", Label: "Back Camera"},
		camtest.Device{ID: "usb", Label: "USB Camera"},
	)

	rec := env.do(t, http.MethodPut, "/api/devices/preferred", `{"device_id":"usb"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if st := decodeBody[scanner.Status](t, rec); !st.Locked {
		t.Error("selection should lock the device choice")
	}
	if v, _ := env.store.Get(prefs.KeyPreferredDevice); v != "usb" {
		t.Errorf("remembered device = %q", v)
	}

	if rec := env.do(t, http.MethodPut, "/api/devices/preferred", `{"device_id":"gone"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/scanner/probe", ""); rec.Code != http.StatusConflict {
		t.Errorf("probe after selection status = %d, want 409", rec.Code)
	}
}

func TestStartWaitsForCode(t *testing.T) {
	env := newTestEnv(t, nil, camtest.Device{ID: "back", Label: "Back Camera", Marker: hit})

	rec := env.do(t, http.MethodPost, "/api/scanner/start", `{"wait_ms":2000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	got := decodeBody[models.SessionData](t, rec)
	if got.Result == nil || got.Result.Text != "4006381333931" {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.SessionID == "" {
		t.Error("missing session id")
	}
	if env.md.LiveTracks() != 0 {
		t.Error("camera still open after success")
	}
}

func TestStartReportsSessionError(t *testing.T) {
	env := newTestEnv(t, nil, camtest.Device{ID: "back", Label: "Back Camera", OpenErr: camera.ErrPermissionDenied})

	rec := env.do(t, http.MethodPost, "/api/scanner/start", `{"wait_ms":2000}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), scanner.ErrCodePermissionDenied) {
		t.Errorf("body lacks error code: %s", rec.Body)
	}
}

func TestStartStopStatus(t *testing.T) {
	env := newTestEnv(t, nil, camtest.Device{
		ID:    "back",
		Label: "Back Camera",
		Caps:  camera.Capabilities{Zoom: &camera.Range{Min: 1, Max: 4}, Torch: true},
	})

	rec := env.do(t, http.MethodPost, "/api/scanner/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}

	deadline := time.After(2 * time.Second)
	for env.ctrl.Status().State != scanner.StateRunning {
		select {
		case <-deadline:
			t.Fatalf("state = %s", env.ctrl.Status().State)
		case <-time.After(5 * time.Millisecond):
		}
	}

	rec = env.do(t, http.MethodPost, "/api/scanner/zoom", `{"level":9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("zoom status = %d: %s", rec.Code, rec.Body)
	}
	if z := decodeBody[models.ZoomData](t, rec); z.Level != 4 || z.Range == nil {
		t.Errorf("zoom = %+v", z)
	}

	if rec := env.do(t, http.MethodPost, "/api/scanner/torch", `{"on":true}`); rec.Code != http.StatusOK {
		t.Fatalf("torch status = %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodGet, scannerStatusPath, "")
	st := decodeBody[scanner.Status](t, rec)
	if st.State != scanner.StateRunning || st.DeviceID != "back" || !st.Torch {
		t.Errorf("status = %+v", st)
	}

	rec = env.do(t, http.MethodPost, "/api/scanner/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if st := decodeBody[scanner.Status](t, rec); st.State != scanner.StateStopped {
		t.Errorf("state after stop = %s", st.State)
	}
	if env.md.LiveTracks() != 0 {
		t.Error("camera still open after stop")
	}

	if rec := env.do(t, http.MethodPost, "/api/scanner/zoom", `{"level":2}`); rec.Code != http.StatusConflict {
		t.Errorf("zoom without session status = %d, want 409", rec.Code)
	}
}

func TestTorchUnsupported(t *testing.T) {
	env := newTestEnv(t, nil, camtest.Device{ID: "back", Label: "Back Camera"})
	env.do(t, http.MethodPost, "/api/scanner/start", "")

	deadline := time.After(2 * time.Second)
	for env.ctrl.Status().State != scanner.StateRunning {
		select {
		case <-deadline:
			t.Fatalf("state = %s", env.ctrl.Status().State)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if rec := env.do(t, http.MethodPost, "/api/scanner/torch", `{"on":true}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestStartAndAutoSelectWithoutBody(t *testing.T) {
	env := newTestEnv(t, nil,
		camtest.Device{ID: "back", Label: "Back Camera"},
		camtest.Device{ID: "usb", Label: "USB Camera"},
	)

	for _, path := range []string{"/api/scanner/start", "/api/scanner/probe"} {
		rec := env.do(t, http.MethodPost, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("POST %s without body status = %d: %s", path, rec.Code, rec.Body)
		}
		if got := decodeBody[models.SessionData](t, rec); got.SessionID == "" || got.Result != nil {
			t.Errorf("POST %s = %+v, want a session without a result", path, got)
		}
	}

	// Codes shown once the cameras are live end the session.
	detected := make(chan events.CodeDetectedEvent, 1)
	unsubscribe := env.bus.Subscribe(func(e events.CodeDetectedEvent) {
		select {
		case detected <- e:
		default:
		}
	})
	defer unsubscribe()
	env.md.SetMarker("back", hit)
	env.md.SetMarker("usb", hit)

	select {
	case e := <-detected:
		if e.Text != "4006381333931" || e.Source != "video" {
			t.Errorf("detected = %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no code detected, state = %s", env.ctrl.Status().State)
	}
}

func TestPhotoDecode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.photo.res = decode.Result{Text: "SN-42", Symbology: decode.Code128, Backend: "zxing"}

	rec := env.do(t, http.MethodPost, photoDecodePath, "fake-jpeg-bytes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[models.PhotoDecodeData](t, rec); got.Text != "SN-42" || got.Symbology != decode.Code128 {
		t.Errorf("photo = %+v", got)
	}
	if string(env.photo.got) != "fake-jpeg-bytes" {
		t.Errorf("decoder got %q", env.photo.got)
	}
}

func TestPhotoDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no code", decode.ErrNotFound, http.StatusNotFound},
		{"unsupported", fmt.Errorf("%w: bad header", photo.ErrUnsupportedImage), http.StatusUnsupportedMediaType},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.photo.err = tt.err
			if rec := env.do(t, http.MethodPost, photoDecodePath, "x"); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPut, "/api/logs/scanner", `{"level":"debug"}`); rec.Code != http.StatusOK {
		t.Errorf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, http.MethodPut, "/api/logs/scanner", `{"level":"loud"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid level status = %d, want 422", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "codescan_sessions_total 1\n")
	})
	env := newTestEnv(t, &Options{PrometheusHandler: handler, AuthUsername: "a", AuthPassword: "b"})

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "codescan_sessions_total") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body)
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %s", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}

	if line := next("event:"); !strings.Contains(line, "scanner-status") {
		t.Errorf("first event = %q", line)
	}
	next("data:")

	// The handler subscribes before sending the status, so this is delivered.
	env.bus.Publish(events.CodeDetectedEvent{Text: "SN-7", Source: "photo", Timestamp: time.Now().Format(time.RFC3339)})
	if line := next("event:"); !strings.Contains(line, "code-detected") {
		t.Errorf("event = %q", line)
	}
	if line := next("data:"); !strings.Contains(line, "SN-7") {
		t.Errorf("data = %q", line)
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method, path string
		status       int
		want         string
	}{
		{http.MethodOptions, "/api/scanner/start", 204, "DEBUG"},
		{http.MethodGet, scannerStatusPath, 200, "DEBUG"},
		{http.MethodPost, photoDecodePath, 404, "INFO"},
		{http.MethodGet, "/api/devices", 403, "WARN"},
		{http.MethodPost, "/api/scanner/start", 503, "ERROR"},
		{http.MethodPost, "/api/scanner/start", 200, "INFO"},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.path, tt.status).String(); got != tt.want {
			t.Errorf("requestLevel(%s %s %d) = %s, want %s", tt.method, tt.path, tt.status, got, tt.want)
		}
	}
}
