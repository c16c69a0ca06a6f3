package models

import "time"

// SystemStatus mirrors the backend's system_status message.
type SystemStatus struct {
	ModbusRunning bool      `json:"modbus_running"`
	WebRunning    bool      `json:"web_running"`
	Error         string    `json:"error,omitempty"`
	ErrorTime     time.Time `json:"error_time,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PendingControl is a control command awaiting its reconciliation read.
type PendingControl struct {
	DeviceID string      `json:"device_id"`
	Key      RegisterKey `json:"key"`
	Value    any         `json:"value"` // bool for coils, int64 otherwise
	IssuedAt time.Time   `json:"issued_at"`
}
