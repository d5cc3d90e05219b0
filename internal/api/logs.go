package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starknet/codescan/internal/api/models"
	"github.com/starknet/codescan/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/{module}",
		Summary:     "Set log level",
		Description: "Change the log level of one module until restart",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *models.LogLevelRequest) (*models.LogLevelResponse, error) {
		if !logging.SetModuleLevel(input.Module, input.Body.Level) {
			return nil, huma.Error422UnprocessableEntity("Unknown log level " + input.Body.Level)
		}
		s.logger.Info("Log level changed", "target", input.Module, "level", input.Body.Level)

		resp := &models.LogLevelResponse{}
		resp.Body.Module = input.Module
		resp.Body.Level = input.Body.Level
		return resp, nil
	})
}
