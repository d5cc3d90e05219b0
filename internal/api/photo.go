package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starknet/codescan/internal/api/models"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/photo"
)

const photoDecodePath = "/api/photo/decode"

func (s *Server) registerPhotoRoutes() {
	maxBytes := s.options.MaxPhotoBytes
	if maxBytes <= 0 {
		maxBytes = photo.DefaultMaxBytes
	}

	huma.Register(s.api, huma.Operation{
		OperationID:  "decode-photo",
		Method:       http.MethodPost,
		Path:         photoDecodePath,
		Summary:      "Decode photo",
		Description:  "Find a code anywhere in one still image. Responds 404 when the image holds no readable code",
		Tags:         []string{"photo"},
		Security:     withAuth(),
		MaxBodyBytes: maxBytes,
		Errors:       []int{401, 404, 413, 415},
	}, func(ctx context.Context, input *models.PhotoDecodeRequest) (*models.PhotoDecodeResponse, error) {
		res, err := s.options.Photo.DecodeReader(ctx, bytes.NewReader(input.RawBody))
		if err != nil {
			switch {
			case errors.Is(err, decode.ErrNotFound):
				return nil, huma.Error404NotFound("No code found in the image")
			case errors.Is(err, photo.ErrUnsupportedImage):
				return nil, huma.NewError(http.StatusUnsupportedMediaType, "Unsupported image", err)
			default:
				return nil, huma.Error500InternalServerError("Failed to decode photo", err)
			}
		}
		return &models.PhotoDecodeResponse{Body: models.PhotoDecodeData{
			Text:      res.Text,
			Symbology: res.Symbology,
			Backend:   res.Backend,
			Timestamp: res.Timestamp,
		}}, nil
	})
}
