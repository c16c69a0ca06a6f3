// Package protocol defines the JSON messages exchanged with the simulator backend.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"modbus_console/internal/models"
)

// ErrMalformedFrame is returned for inbound frames that are not valid structured messages.
var ErrMalformedFrame = errors.New("malformed frame")

// MessageType is the closed set of message discriminators.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeSystemStatus
	TypeDeviceStatus
	TypeDeviceUpdate
	TypeHeartbeat
	TypeRequestData
	TypeControl

	typeCount
)

var typeNames = [typeCount]string{
	TypeUnknown:      "unknown",
	TypeSystemStatus: "system_status",
	TypeDeviceStatus: "device_status",
	TypeDeviceUpdate: "device_update",
	TypeHeartbeat:    "heartbeat",
	TypeRequestData:  "request_data",
	TypeControl:      "control",
}

func (t MessageType) String() string {
	if t < 0 || t >= typeCount {
		return typeNames[TypeUnknown]
	}
	return typeNames[t]
}

// Valid reports whether t is a known discriminator (Unknown included).
func (t MessageType) Valid() bool {
	return t >= 0 && t < typeCount
}

// ParseMessageType maps a wire discriminator to its MessageType; anything else is TypeUnknown.
func ParseMessageType(s string) MessageType {
	for i, name := range typeNames {
		if i != int(TypeUnknown) && name == s {
			return MessageType(i)
		}
	}
	return TypeUnknown
}

// Message is one decoded inbound frame.
type Message interface {
	Type() MessageType
}

// SystemStatus reports whether the backend's Modbus and web servers are running.
type SystemStatus struct {
	ModbusRunning bool      `json:"modbus_running"`
	WebRunning    bool      `json:"web_running"`
	Error         string    `json:"error"`
	ErrorTime     Timestamp `json:"error_time"`
	Timestamp     Timestamp `json:"timestamp"`
}

func (SystemStatus) Type() MessageType { return TypeSystemStatus }

// Model converts the message into the status shown to the operator.
func (s SystemStatus) Model() models.SystemStatus {
	return models.SystemStatus{
		ModbusRunning: s.ModbusRunning,
		WebRunning:    s.WebRunning,
		Error:         s.Error,
		ErrorTime:     s.ErrorTime.Time,
		UpdatedAt:     s.Timestamp.Time,
	}
}

// RegisterValue is one register as it appears on the wire.
type RegisterValue struct {
	Type    string   `json:"type"`
	Address int      `json:"address"`
	Value   RawValue `json:"value"`
}

// DevicePayload is the register set of one device.
type DevicePayload struct {
	Name       string          `json:"name"`
	Data       []RegisterValue `json:"data"`
	LastUpdate Timestamp       `json:"last_update"`
}

// Entries converts the payload into register entries. Entries with an unknown register type or a
// negative address are skipped and reported through the returned error.
func (p DevicePayload) Entries() ([]models.RegisterEntry, error) {
	out := make([]models.RegisterEntry, 0, len(p.Data))
	var errs []error
	for _, rv := range p.Data {
		kind, err := models.ParseRegisterKind(rv.Type)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rv.Address < 0 {
			errs = append(errs, fmt.Errorf("negative address %d for %s", rv.Address, kind))
			continue
		}
		out = append(out, models.RegisterEntry{Kind: kind, Address: rv.Address, Value: int64(rv.Value)})
	}
	return out, errors.Join(errs...)
}

// DeviceStatus is the full snapshot of every device.
type DeviceStatus struct {
	Devices   map[DeviceID]DevicePayload `json:"devices"`
	Timestamp Timestamp                  `json:"timestamp"`
}

func (DeviceStatus) Type() MessageType { return TypeDeviceStatus }

// IDs returns the device ids in the snapshot in a stable order.
func (s DeviceStatus) IDs() []string {
	ids := make([]string, 0, len(s.Devices))
	for id := range s.Devices {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return ids
}

// DeviceUpdate carries the register set of a single device.
type DeviceUpdate struct {
	DeviceID  DeviceID      `json:"device_id"`
	Data      DevicePayload `json:"data"`
	Timestamp Timestamp     `json:"timestamp"`
}

func (DeviceUpdate) Type() MessageType { return TypeDeviceUpdate }

// Unknown is the typed default for discriminators the console does not handle.
type Unknown struct {
	Name string
}

func (Unknown) Type() MessageType { return TypeUnknown }

type header struct {
	Type string `json:"type"`
}

// Decode parses an inbound frame. Frames that are not JSON objects, or whose body does not match
// their declared type, yield ErrMalformedFrame.
func Decode(frame []byte) (Message, error) {
	var h header
	if err := json.Unmarshal(frame, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var (
		msg Message
		err error
	)
	switch t := ParseMessageType(h.Type); t {
	case TypeSystemStatus:
		var m SystemStatus
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypeDeviceStatus:
		var m DeviceStatus
		err = json.Unmarshal(frame, &m)
		msg = m
	case TypeDeviceUpdate:
		var m DeviceUpdate
		err = json.Unmarshal(frame, &m)
		if err == nil && m.DeviceID == "" {
			err = errors.New("device_update without device_id")
		}
		msg = m
	default:
		msg = Unknown{Name: h.Type}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, h.Type, err)
	}
	return msg, nil
}
