package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/screenlink/screenlink/internal/api/models"
	"github.com/screenlink/screenlink/internal/api/response"
	"github.com/screenlink/screenlink/internal/device"
	"github.com/screenlink/screenlink/internal/ingest"
)

// DeviceHandler handles the endpoints called by signage players.
type DeviceHandler struct {
	devices *device.Service
	ingest  *ingest.Service
	logger  zerolog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(devices *device.Service, ingestService *ingest.Service, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		ingest:  ingestService,
		logger:  logger,
	}
}

// RegisterDevice handles POST /v1/devices/register.
// Returns 201 with a pairing code for a new device, 200 for a known one.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceRegisterRequest
	if err := decodeJSON(w, r, &input, true); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	result, err := h.devices.Register(r.Context(), input.DeviceID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if !result.Created {
		response.JSON(w, r, http.StatusOK, models.DeviceRegisterResponse{
			Device:  toDeviceModel(result.Device),
			Message: "device already registered",
		})
		return
	}

	response.JSON(w, r, http.StatusCreated, models.DeviceRegisterResponse{
		Device:      toDeviceModel(result.Device),
		PairingCode: result.PairingCode,
	})
}

// GetDeviceStatus handles GET /v1/devices/{deviceId}/status.
func (h *DeviceHandler) GetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		response.BadRequest(w, r, "deviceId is required", nil)
		return
	}

	status, err := h.devices.PollStatus(r.Context(), deviceID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.DeviceStatusResponse{
		Status: string(status.Status),
		Token:  status.Token,
	})
}

// IngestLogs handles POST /v1/devices/logs.
func (h *DeviceHandler) IngestLogs(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceLogsRequest
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if input.DeviceID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "deviceId", Message: "required", Code: "REQUIRED"})
	}
	if input.Token == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "token", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation error", fieldErrors)
		return
	}

	entries, err := ingest.ParseLogs(input.Logs)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "logs", Message: err.Error(), Code: "INVALID"},
		})
		return
	}

	result, err := h.ingest.Ingest(r.Context(), ingest.Request{
		DeviceID: input.DeviceID,
		Token:    input.Token,
		Logs:     entries,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response.Accepted(w, r, models.DeviceLogsResponse{Accepted: result.Primary.Accepted})
}

func toDeviceModel(d *device.Device) models.Device {
	return models.Device{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		Status:    string(d.Status),
		ScreenID:  d.ScreenID,
		LastSeen:  models.Timestamp(d.LastSeen),
		CreatedAt: models.Timestamp(d.CreatedAt),
	}
}
