package channel

import "time"

// Config holds the resilience settings shared by both channels.
type Config struct {
	// BaseURL is the backend websocket origin, e.g. ws://localhost:8080.
	BaseURL              string
	DialTimeout          time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HeartbeatInterval    time.Duration
	// IdleTimeout closes a connection that delivered no frame for this long. Zero disables it.
	IdleTimeout        time.Duration
	MaxErrors          int
	ErrorResetInterval time.Duration
	DrainSpacing       time.Duration
}

// DefaultConfig returns the defaults used when configuration leaves a field unset.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "ws://localhost:8080",
		DialTimeout:          10 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       3 * time.Second,
		HeartbeatInterval:    15 * time.Second,
		IdleTimeout:          30 * time.Second,
		MaxErrors:            10,
		ErrorResetInterval:   60 * time.Second,
		DrainSpacing:         50 * time.Millisecond,
	}
}
