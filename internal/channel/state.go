package channel

import (
	"time"

	"modbus_console/internal/protocol"
)

// State is the lifecycle state of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
	Reconnecting
	// CircuitOpen is terminal for the Channel instance.
	CircuitOpen
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Reconnecting:
		return "reconnecting"
	case CircuitOpen:
		return "circuit_open"
	default:
		return "invalid"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind identifies which backend endpoint a Channel serves.
type Kind string

const (
	KindSystem Kind = "system"
	KindDevice Kind = "device"
)

// Profile is the per-kind capability table: endpoint path and the requests emitted on open.
type Profile struct {
	Kind         Kind
	Path         string
	OpenRequests func() []protocol.Outbound
}

// SystemProfile describes the system-status channel.
func SystemProfile(path string) Profile {
	return Profile{
		Kind: KindSystem,
		Path: path,
		OpenRequests: func() []protocol.Outbound {
			return []protocol.Outbound{protocol.RequestAllDevices()}
		},
	}
}

// DeviceProfile describes the device telemetry channel.
func DeviceProfile(path string) Profile {
	return Profile{
		Kind: KindDevice,
		Path: path,
		OpenRequests: func() []protocol.Outbound {
			return []protocol.Outbound{protocol.RequestAllDevices()}
		},
	}
}

// ErrorClass is the category of an error counted toward the circuit breaker.
type ErrorClass int

const (
	ErrorTransport ErrorClass = iota
	ErrorMalformed
)

func (c ErrorClass) String() string {
	if c == ErrorMalformed {
		return "malformed"
	}
	return "transport"
}

// Reasons attached to transitions.
const (
	ReasonConnect   = "connect"
	ReasonOpened    = "opened"
	ReasonClosed    = "closed"
	ReasonGiveUp    = "give_up"
	ReasonCircuit   = "circuit_open"
	ReasonShutdown  = "shutdown"
	ReasonReconnect = "reconnect"
)

// Transition describes one state change.
type Transition struct {
	Kind     Kind
	From     State
	To       State
	At       time.Time
	Attempts int
	Reason   string
	Err      error
}

// Listener is notified on the loop after every state change.
type Listener func(Transition)

// Stats is a point-in-time view of a Channel.
type Stats struct {
	Kind          Kind      `json:"kind"`
	URL           string    `json:"url"`
	State         State     `json:"state"`
	Attempts      int       `json:"reconnect_attempts"`
	Errors        int       `json:"errors"`
	QueueLen      int       `json:"queue_len"`
	Parked        int       `json:"parked"`
	HandlerErrors int       `json:"handler_errors"`
	ChangedAt     time.Time `json:"changed_at"`
}
