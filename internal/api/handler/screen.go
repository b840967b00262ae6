package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/models"
	"github.com/screenlink/screenlink/internal/api/response"
	"github.com/screenlink/screenlink/internal/device"
)

// ScreenHandler handles actor-facing screen endpoints.
type ScreenHandler struct {
	devices *device.Service
	logger  zerolog.Logger
}

// NewScreenHandler creates a new ScreenHandler.
func NewScreenHandler(devices *device.Service, logger zerolog.Logger) *ScreenHandler {
	return &ScreenHandler{devices: devices, logger: logger}
}

// PairDevice handles POST /v1/screens/{screenId}/pair.
func (h *ScreenHandler) PairDevice(w http.ResponseWriter, r *http.Request) {
	actorID := GetActorID(r.Context())
	if actorID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	var input models.PairRequest
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	screenID := chi.URLParam(r, "screenId")
	if err := h.devices.Pair(r.Context(), actorID, screenID, input.PairingCode); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.PairResponse{Success: true})
}
