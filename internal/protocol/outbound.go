package protocol

import (
	"encoding/json"
	"time"

	"modbus_console/internal/models"
)

// Request types for request_data.
const (
	RequestAll    = "all"
	RequestSingle = "single"
)

// Outbound is a message the console sends to the backend.
type Outbound interface {
	Type() MessageType
}

// Heartbeat keeps the connection alive on the backend side.
type Heartbeat struct{}

func (Heartbeat) Type() MessageType { return TypeHeartbeat }

func (Heartbeat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{TypeHeartbeat.String()})
}

// RequestData asks the backend for a full snapshot, or for a single device when DeviceID is set.
type RequestData struct {
	RequestType string
	DeviceID    string
}

func (RequestData) Type() MessageType { return TypeRequestData }

func (r RequestData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string `json:"type"`
		RequestType string `json:"requestType"`
		DeviceID    string `json:"deviceId,omitempty"`
	}{TypeRequestData.String(), r.RequestType, r.DeviceID})
}

// RequestAllDevices is the full-state request sent when the device channel opens.
func RequestAllDevices() RequestData {
	return RequestData{RequestType: RequestAll}
}

// RequestDevice is the reconciliation read for one device.
func RequestDevice(id string) RequestData {
	return RequestData{RequestType: RequestSingle, DeviceID: id}
}

// Control writes a coil or holding register. Value is a bool for coils and an int64 otherwise.
type Control struct {
	DeviceID     string
	RegisterType models.RegisterKind
	Address      int
	Value        any
	Timestamp    time.Time
}

func (Control) Type() MessageType { return TypeControl }

func (c Control) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string              `json:"type"`
		DeviceID     string              `json:"deviceId"`
		RegisterType models.RegisterKind `json:"registerType"`
		Address      int                 `json:"address"`
		Value        any                 `json:"value"`
		Timestamp    int64               `json:"timestamp"`
	}{TypeControl.String(), c.DeviceID, c.RegisterType, c.Address, c.Value, c.Timestamp.UnixMilli()})
}

// Envelope is an outbound message waiting in a channel queue.
type Envelope struct {
	Msg       Outbound
	CreatedAt time.Time
	DeviceID  string
}

// NewEnvelope wraps msg, deriving the target device from the payload.
func NewEnvelope(msg Outbound, now time.Time) Envelope {
	env := Envelope{Msg: msg, CreatedAt: now}
	switch m := msg.(type) {
	case RequestData:
		env.DeviceID = m.DeviceID
	case Control:
		env.DeviceID = m.DeviceID
	}
	return env
}

// Encode serializes the payload.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e.Msg)
}
