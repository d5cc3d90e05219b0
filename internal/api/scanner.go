package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starknet/codescan/internal/api/models"
	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/probe"
	"github.com/starknet/codescan/internal/scanner"
)

const scannerStatusPath = "/api/scanner/status"

func (s *Server) registerScannerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-scan",
		Method:      http.MethodPost,
		Path:        "/api/scanner/start",
		Summary:     "Start scanning",
		Description: "Open a camera and scan until one code is found. A running session is restarted. With wait_ms the call blocks until a code, an error or the timeout",
		Tags:        []string{"scanner"},
		Security:    withAuth(),
		Errors:      []int{401, 403, 404, 503},
	}, func(ctx context.Context, input *models.ScannerStartRequest) (*models.SessionResponse, error) {
		session, err := s.options.Scanner.Start(ctx, scanner.StartOptions{DeviceID: input.DeviceID()})
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("Failed to start scanning", err)
		}
		return s.sessionResponse(ctx, session, input.WaitMS())
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "probe-scan",
		Method:      http.MethodPost,
		Path:        "/api/scanner/probe",
		Summary:     "Probe cameras",
		Description: "Try each camera in rank order for a short trial and keep the first one that reads a code. Refused once a camera was picked explicitly",
		Tags:        []string{"scanner"},
		Security:    withAuth(),
		Errors:      []int{401, 403, 404, 409, 503},
	}, func(ctx context.Context, input *models.ScannerStartRequest) (*models.SessionResponse, error) {
		session, err := s.options.Scanner.Probe(ctx, scanner.StartOptions{})
		if err != nil {
			if errors.Is(err, probe.ErrUserLocked) {
				return nil, huma.Error409Conflict("A camera was selected explicitly", err)
			}
			return nil, huma.Error503ServiceUnavailable("Failed to start probing", err)
		}
		return s.sessionResponse(ctx, session, input.WaitMS())
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-scan",
		Method:      http.MethodPost,
		Path:        "/api/scanner/stop",
		Summary:     "Stop scanning",
		Description: "End the session and release the camera. Safe to call at any time",
		Tags:        []string{"scanner"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.StatusResponse, error) {
		if err := s.options.Scanner.Stop(ctx); err != nil {
			return nil, huma.Error500InternalServerError("Failed to stop scanning", err)
		}
		return &models.StatusResponse{Body: s.options.Scanner.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "scan-status",
		Method:      http.MethodGet,
		Path:        scannerStatusPath,
		Summary:     "Scanner status",
		Description: "Current state, camera and live controls",
		Tags:        []string{"scanner"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.options.Scanner.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-zoom",
		Method:      http.MethodPost,
		Path:        "/api/scanner/zoom",
		Summary:     "Set zoom",
		Description: "Change the zoom of the live camera. The level is clamped to the supported range",
		Tags:        []string{"scanner"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *models.ZoomRequest) (*models.ZoomResponse, error) {
		level, err := s.options.Scanner.SetZoom(ctx, input.Body.Level)
		if err != nil {
			return nil, controlError("zoom", err)
		}
		resp := &models.ZoomResponse{Body: models.ZoomData{Level: level}}
		if caps := s.options.Scanner.Status().Capabilities; caps != nil {
			resp.Body.Range = caps.Zoom
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-torch",
		Method:      http.MethodPost,
		Path:        "/api/scanner/torch",
		Summary:     "Set torch",
		Description: "Switch the torch of the live camera",
		Tags:        []string{"scanner"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *models.TorchRequest) (*models.TorchResponse, error) {
		if err := s.options.Scanner.SetTorch(ctx, input.Body.On); err != nil {
			return nil, controlError("torch", err)
		}
		return &models.TorchResponse{Body: models.TorchData{On: input.Body.On}}, nil
	})
}

// sessionResponse optionally waits for the session's outcome.
func (s *Server) sessionResponse(ctx context.Context, session *scanner.Session, waitMS int) (*models.SessionResponse, error) {
	if waitMS > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(waitMS)*time.Millisecond)
		defer cancel()

		select {
		case res, ok := <-session.Result():
			if ok {
				return &models.SessionResponse{Body: models.SessionData{
					SessionID: session.ID(),
					Status:    s.options.Scanner.Status(),
					Result:    &res,
				}}, nil
			}
		case <-waitCtx.Done():
		}

		if err := session.Err(); err != nil {
			return nil, sessionError(err)
		}
	}

	return &models.SessionResponse{Body: models.SessionData{
		SessionID: session.ID(),
		Status:    s.options.Scanner.Status(),
		Error:     session.Err(),
	}}, nil
}

func sessionError(err *scanner.SessionError) error {
	msg := err.Code + ": " + err.Message
	switch err.Code {
	case scanner.ErrCodePermissionDenied:
		return huma.Error403Forbidden(msg, err)
	case scanner.ErrCodeProbeExhausted:
		return huma.Error404NotFound(msg, err)
	default:
		return huma.Error503ServiceUnavailable(msg, err)
	}
}

func controlError(control string, err error) error {
	switch {
	case errors.Is(err, scanner.ErrNoSession), errors.Is(err, camera.ErrTrackEnded):
		return huma.Error409Conflict("No camera is live", err)
	case errors.Is(err, camera.ErrUnsupportedCapability):
		return huma.Error422UnprocessableEntity("The camera has no "+control+" control", err)
	default:
		return huma.Error500InternalServerError("Failed to set "+control, err)
	}
}
