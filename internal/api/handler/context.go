package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/middleware"
	"github.com/screenlink/screenlink/internal/api/response"
	"github.com/screenlink/screenlink/internal/device"
	"github.com/screenlink/screenlink/internal/ingest"
	"github.com/screenlink/screenlink/internal/screen"
)

// maxBodyBytes bounds request bodies, including telemetry batches.
const maxBodyBytes = 1 << 20

// GetActorID retrieves the authenticated actor ID from the context.
// This is a convenience wrapper around middleware.GetActorID.
func GetActorID(ctx context.Context) string {
	return middleware.GetActorID(ctx)
}

// decodeJSON decodes the request body into dst. An empty body is accepted
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// writeServiceError maps domain errors to Problem responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, device.ErrValidation), errors.Is(err, ingest.ErrValidation):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, device.ErrUnauthorized):
		response.Unauthorized(w, r, "invalid device credentials")
	case errors.Is(err, device.ErrForbidden):
		response.Forbidden(w, r, "you do not own this screen")
	case errors.Is(err, screen.ErrScreenNotFound):
		response.NotFound(w, r, "screen not found")
	case errors.Is(err, device.ErrDeviceNotFound):
		response.NotFound(w, r, "device not found")
	case errors.Is(err, device.ErrInvalidPairingCode):
		response.NotFound(w, r, "invalid pairing code")
	default:
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
