package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RegisterKind is the Modbus data area a register belongs to.
type RegisterKind int

const (
	InputRegister RegisterKind = iota + 1
	HoldingRegister
	Coil
	DiscreteInput
)

// Wire codes used by the backend.
const (
	codeInputRegister   = "IR"
	codeHoldingRegister = "HR"
	codeCoil            = "CO"
	codeDiscreteInput   = "DI"
)

// ParseRegisterKind maps a wire code (IR, HR, CO, DI) to a RegisterKind.
func ParseRegisterKind(s string) (RegisterKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case codeInputRegister:
		return InputRegister, nil
	case codeHoldingRegister:
		return HoldingRegister, nil
	case codeCoil:
		return Coil, nil
	case codeDiscreteInput:
		return DiscreteInput, nil
	default:
		return 0, fmt.Errorf("unknown register type %q", s)
	}
}

func (k RegisterKind) String() string {
	switch k {
	case InputRegister:
		return codeInputRegister
	case HoldingRegister:
		return codeHoldingRegister
	case Coil:
		return codeCoil
	case DiscreteInput:
		return codeDiscreteInput
	default:
		return fmt.Sprintf("RegisterKind(%d)", int(k))
	}
}

// IsBoolean reports whether values of this kind are on/off bits.
func (k RegisterKind) IsBoolean() bool {
	return k == Coil || k == DiscreteInput
}

// Writable reports whether the backend accepts control writes for this kind.
func (k RegisterKind) Writable() bool {
	return k == Coil || k == HoldingRegister
}

func (k RegisterKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *RegisterKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRegisterKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText lets RegisterKind be used as a YAML/JSON map key.
func (k RegisterKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RegisterKind) UnmarshalText(b []byte) error {
	parsed, err := ParseRegisterKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RegisterKey identifies a register within one device.
type RegisterKey struct {
	Kind    RegisterKind `json:"type"`
	Address int          `json:"address"`
}

func (k RegisterKey) String() string {
	return fmt.Sprintf("%s%d", k.Kind, k.Address)
}

// Less orders keys by kind, then address.
func (k RegisterKey) Less(o RegisterKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.Address < o.Address
}

// RegisterEntry is one raw register value as reported by the backend.
type RegisterEntry struct {
	Kind    RegisterKind `json:"type"`
	Address int          `json:"address"`
	Value   int64        `json:"value"`
}

func (e RegisterEntry) Key() RegisterKey {
	return RegisterKey{Kind: e.Kind, Address: e.Address}
}

// Change is a committed register mutation: the raw value and its formatted display.
type Change struct {
	Key     RegisterKey `json:"key"`
	Raw     int64       `json:"raw"`
	Display string      `json:"display"`
}
