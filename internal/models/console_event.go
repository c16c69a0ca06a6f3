package models

import "time"

// Event types written to the audit log.
const (
	EventConnected       = "CONNECTED"
	EventDisconnected    = "DISCONNECTED"
	EventReconnecting    = "RECONNECTING"
	EventGiveUp          = "GIVE_UP"
	EventCircuitOpen     = "CIRCUIT_OPEN"
	EventControl         = "CONTROL"
	EventControlMismatch = "CONTROL_MISMATCH"
)

// ConsoleEvent is a single audit log entry.
type ConsoleEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Channel     string    `json:"channel,omitempty"`   // system | device
	DeviceID    string    `json:"device_id,omitempty"` // set for control events
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
