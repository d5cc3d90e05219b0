// Package api exposes the scanner over HTTP with huma.
package api

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/starknet/codescan/internal/api/models"
	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/logging"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/scanner"
	"github.com/starknet/codescan/internal/version"
)

// Scanner is the live scan controller as seen by the API.
type Scanner interface {
	Start(ctx context.Context, so scanner.StartOptions) (*scanner.Session, error)
	Probe(ctx context.Context, so scanner.StartOptions) (*scanner.Session, error)
	Stop(ctx context.Context) error
	SelectDevice(ctx context.Context, deviceID string) (*scanner.Session, error)
	SetZoom(ctx context.Context, level float64) (float64, error)
	SetTorch(ctx context.Context, on bool) error
	Status() scanner.Status
}

// PhotoDecoder decodes a single still image.
type PhotoDecoder interface {
	DecodeReader(ctx context.Context, r io.Reader) (decode.Result, error)
}

// Options wires the server to the rest of the application.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Devices           camera.MediaDevices
	Prefs             prefs.Store
	Scanner           Scanner
	Photo             PhotoDecoder
	Bus               *events.Bus
	MaxPhotoBytes     int64
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the HTTP front of the scanner.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

const authRealm = `Basic realm="codescan"`

// basicAuthMiddleware creates middleware for HTTP basic authentication.
// EventSource clients cannot set headers, so the credentials may also come
// base64-encoded in the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			var ok bool
			encoded, ok = strings.CutPrefix(header, "Basic ")
			if !ok {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
		}
		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok || user != username || pass != password {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", authRealm)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("codescan API", version.Get().Version)
	config.Info.Description = "Camera barcode scanning: device selection, live scan sessions and photo decoding"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting codescan API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the listener down without waiting for SSE clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerScannerRoutes()
	s.registerPhotoRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
