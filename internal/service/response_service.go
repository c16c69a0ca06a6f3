package service

import (
	"time"

	"modbus_console/internal/models"
	"modbus_console/internal/view"
)

// ControlParams is an operator write request for one register of a device.
type ControlParams struct {
	RegisterType string  // "CO" | "HR"
	Address      int     // register address
	Value        float64 // raw units; any non-zero value switches a coil on
}

// LogFilter supports audit log filtering by time range, type, channel and device.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	Type     string    // "", "CONNECTED", "DISCONNECTED", "RECONNECTING", "GIVE_UP", "CIRCUIT_OPEN", "CONTROL", "CONTROL_MISMATCH"
	Channel  string    // "", "system", "device"
	DeviceID string
	Limit    int // 0 means no limit
}

// DeviceDetail is a rendered device with its unreconciled control commands.
type DeviceDetail struct {
	view.DeviceView
	Pending []models.PendingControl `json:"pending"`
}
