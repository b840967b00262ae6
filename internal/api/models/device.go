package models

import "encoding/json"

// Device is the public view of a signage player. Credentials are never
// included.
type Device struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Status    string    `json:"status"`
	ScreenID  *string   `json:"screenId,omitempty"`
	LastSeen  Timestamp `json:"lastSeen"`
	CreatedAt Timestamp `json:"createdAt"`
}

// DeviceRegisterRequest is the request body for registering a device. An
// empty body is accepted.
type DeviceRegisterRequest struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// DeviceRegisterResponse is returned by register. PairingCode is present
// only when this call created the device.
type DeviceRegisterResponse struct {
	Device      Device `json:"device"`
	PairingCode string `json:"pairingCode,omitempty"`
	Message     string `json:"message,omitempty"`
}

// DeviceStatusResponse is returned by the status poll. Token is present
// only for an active device that has not used it yet.
type DeviceStatusResponse struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

// DeviceLogsRequest is a telemetry batch. Logs is decoded separately so a
// malformed entry can be reported precisely.
type DeviceLogsRequest struct {
	DeviceID string          `json:"deviceId"`
	Token    string          `json:"token"`
	Logs     json.RawMessage `json:"logs"`
}

// DeviceLogsResponse reports how many entries were accepted.
type DeviceLogsResponse struct {
	Accepted int `json:"accepted"`
}

// PairRequest is the request body for pairing a device to a screen.
type PairRequest struct {
	PairingCode string `json:"pairingCode"`
}

// PairResponse is returned by a successful pairing.
type PairResponse struct {
	Success bool `json:"success"`
}
