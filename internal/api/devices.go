package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starknet/codescan/internal/api/models"
	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/devices"
	"github.com/starknet/codescan/internal/prefs"
	"github.com/starknet/codescan/internal/scanner"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List cameras",
		Description: "Enumerate cameras ranked by lens quality, marking the default and the remembered device",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 403, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		list, err := devices.Enumerate(ctx, s.options.Devices)
		if err != nil {
			if errors.Is(err, camera.ErrPermissionDenied) {
				return nil, huma.Error403Forbidden("Camera access was refused", err)
			}
			return nil, huma.Error500InternalServerError("Failed to enumerate cameras", err)
		}
		return &models.DeviceListResponse{Body: s.deviceList(list)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-preferred-device",
		Method:      http.MethodPut,
		Path:        "/api/devices/preferred",
		Summary:     "Select camera",
		Description: "Record an explicit camera choice. It is remembered, disables auto-probe and restarts a live session on that camera",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 403, 404, 500},
	}, func(ctx context.Context, input *models.PreferredDeviceRequest) (*models.StatusResponse, error) {
		if _, err := s.options.Scanner.SelectDevice(ctx, input.Body.DeviceID); err != nil {
			switch {
			case errors.Is(err, scanner.ErrUnknownDevice):
				return nil, huma.Error404NotFound("Camera not found", err)
			case errors.Is(err, camera.ErrPermissionDenied):
				return nil, huma.Error403Forbidden("Camera access was refused", err)
			default:
				return nil, huma.Error500InternalServerError("Failed to select camera", err)
			}
		}
		return &models.StatusResponse{Body: s.options.Scanner.Status()}, nil
	})
}

func (s *Server) deviceList(list []devices.CameraDevice) models.DeviceListData {
	var saved string
	if s.options.Prefs != nil {
		saved, _ = s.options.Prefs.Get(prefs.KeyPreferredDevice)
	}
	def, _, _ := devices.ResolvePreferred(list, saved)

	ranked := devices.Rank(list)
	data := models.DeviceListData{
		Devices: make([]models.DeviceData, 0, len(ranked)),
		Count:   len(ranked),
		Locked:  s.options.Scanner.Status().Locked,
	}
	for _, d := range ranked {
		data.Devices = append(data.Devices, models.DeviceData{
			DeviceID:  d.DeviceID,
			Label:     d.Label,
			Score:     d.Score,
			Default:   d.DeviceID == def.DeviceID,
			Preferred: saved != "" && d.DeviceID == saved,
		})
	}
	return data
}
