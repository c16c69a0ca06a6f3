// Package config loads the console configuration with viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"modbus_console/internal/channel"
	"modbus_console/internal/control"
	"modbus_console/internal/registry"
)

// EnvPrefix prefixes environment overrides, e.g. CONSOLE_BACKEND_URL.
const EnvPrefix = "CONSOLE"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Backend BackendConfig `mapstructure:"backend"`
	Channel ChannelConfig `mapstructure:"channel"`
	Display DisplayConfig `mapstructure:"display"`
	Control ControlConfig `mapstructure:"control"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Auth    AuthConfig    `mapstructure:"auth"`
	DB      DBConfig      `mapstructure:"db"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	UI      UIConfig      `mapstructure:"ui"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output"`
}

type BackendConfig struct {
	URL              string        `mapstructure:"url"`
	SystemPath       string        `mapstructure:"system_path"`
	DevicePath       string        `mapstructure:"device_path"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

type ChannelConfig struct {
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	// DeviceIdleTimeout applies to the device channel, which is silent while the backend's Modbus server is stopped.
	DeviceIdleTimeout  time.Duration `mapstructure:"device_idle_timeout"`
	MaxErrors          int           `mapstructure:"max_errors"`
	ErrorResetInterval time.Duration `mapstructure:"error_reset_interval"`
	DrainSpacing       time.Duration `mapstructure:"drain_spacing"`
}

type DisplayConfig struct {
	Primary       string        `mapstructure:"primary"`
	DeviceWindow  time.Duration `mapstructure:"device_window"`
	BuildWindow   time.Duration `mapstructure:"build_window"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	// Catalog is an optional presentation table replacing the built-in one.
	Catalog string `mapstructure:"catalog"`
}

type ControlConfig struct {
	Window         time.Duration `mapstructure:"window"`
	ReconcileDelay time.Duration `mapstructure:"reconcile_delay"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
}

type HTTPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Port           string        `mapstructure:"port"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

type AuthConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	SigningKey   string        `mapstructure:"signing_key"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type MirrorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Prefix   string `mapstructure:"prefix"`
	QoS      byte   `mapstructure:"qos"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	defaults := channel.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "console.log")

	v.SetDefault("backend.url", defaults.BaseURL)
	v.SetDefault("backend.system_path", "/ws/system")
	v.SetDefault("backend.device_path", "/ws")
	v.SetDefault("backend.handshake_timeout", defaults.DialTimeout)
	v.SetDefault("backend.write_timeout", 10*time.Second)

	v.SetDefault("channel.max_reconnect_attempts", defaults.MaxReconnectAttempts)
	v.SetDefault("channel.reconnect_delay", defaults.ReconnectDelay)
	v.SetDefault("channel.heartbeat_interval", defaults.HeartbeatInterval)
	v.SetDefault("channel.idle_timeout", defaults.IdleTimeout)
	v.SetDefault("channel.device_idle_timeout", 0)
	v.SetDefault("channel.max_errors", defaults.MaxErrors)
	v.SetDefault("channel.error_reset_interval", defaults.ErrorResetInterval)
	v.SetDefault("channel.drain_spacing", defaults.DrainSpacing)

	v.SetDefault("display.primary", registry.DefaultPrimary)
	v.SetDefault("display.device_window", registry.DefaultDeviceWindow)
	v.SetDefault("display.build_window", registry.DefaultBuildWindow)
	v.SetDefault("display.frame_interval", 16*time.Millisecond)
	v.SetDefault("display.catalog", "")

	v.SetDefault("control.window", control.DefaultWindow)
	v.SetDefault("control.reconcile_delay", control.DefaultReconcileDelay)
	v.SetDefault("control.pending_timeout", control.DefaultPendingTimeout)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", "8090")
	v.SetDefault("http.stream_interval", time.Second)

	v.SetDefault("auth.username", "operator")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("db.path", "console.db")

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.broker", "tcp://localhost:1883")
	v.SetDefault("mirror.client_id", "modbus-console")
	v.SetDefault("mirror.prefix", "modbus")
	v.SetDefault("mirror.qos", 0)
	v.SetDefault("mirror.username", "")
	v.SetDefault("mirror.password", "")

	v.SetDefault("ui.enabled", true)
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// Load reads path (or configs/config.yml when path is empty), applies CONSOLE_* environment
// overrides and validates the result. A missing default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.url must be a ws:// or wss:// URL, got %q", c.Backend.URL))
	}
	if !strings.HasPrefix(c.Backend.SystemPath, "/") || !strings.HasPrefix(c.Backend.DevicePath, "/") {
		errs = append(errs, errors.New("backend paths must start with /"))
	}
	if c.Channel.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("channel.max_reconnect_attempts must not be negative"))
	}
	if c.Channel.MaxErrors < 1 {
		errs = append(errs, errors.New("channel.max_errors must be at least 1"))
	}
	if c.Channel.ReconnectDelay <= 0 || c.Channel.ErrorResetInterval <= 0 {
		errs = append(errs, errors.New("channel.reconnect_delay and channel.error_reset_interval must be positive"))
	}
	if c.Channel.IdleTimeout < 0 || c.Channel.DeviceIdleTimeout < 0 || c.Channel.DrainSpacing < 0 {
		errs = append(errs, errors.New("channel timeouts must not be negative"))
	}
	if c.Display.Primary == "" {
		errs = append(errs, errors.New("display.primary must be set"))
	}
	if c.Display.FrameInterval <= 0 {
		errs = append(errs, errors.New("display.frame_interval must be positive"))
	}
	if c.HTTP.Enabled && c.Auth.PasswordHash != "" && c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key is required when auth.password_hash is set"))
	}
	if c.UI.Enabled && (c.Log.Output == "" || c.Log.Output == "stdout") {
		errs = append(errs, errors.New("log.output must be stderr or a file while the terminal UI is enabled"))
	}
	if c.Mirror.Enabled && c.Mirror.Broker == "" {
		errs = append(errs, errors.New("mirror.broker is required when the mirror is enabled"))
	}
	if c.Mirror.QoS > 2 {
		errs = append(errs, errors.New("mirror.qos must be 0, 1 or 2"))
	}
	return errors.Join(errs...)
}

// ChannelFor returns the resilience settings for one channel kind.
func (c *Config) ChannelFor(kind channel.Kind) channel.Config {
	idle := c.Channel.IdleTimeout
	if kind == channel.KindDevice {
		idle = c.Channel.DeviceIdleTimeout
	}
	return channel.Config{
		BaseURL:              c.Backend.URL,
		DialTimeout:          c.Backend.HandshakeTimeout,
		MaxReconnectAttempts: c.Channel.MaxReconnectAttempts,
		ReconnectDelay:       c.Channel.ReconnectDelay,
		HeartbeatInterval:    c.Channel.HeartbeatInterval,
		IdleTimeout:          idle,
		MaxErrors:            c.Channel.MaxErrors,
		ErrorResetInterval:   c.Channel.ErrorResetInterval,
		DrainSpacing:         c.Channel.DrainSpacing,
	}
}

// RegistryConfig returns the device registry settings.
func (c *Config) RegistryConfig() registry.Config {
	return registry.Config{
		Primary:      c.Display.Primary,
		DeviceWindow: c.Display.DeviceWindow,
		BuildWindow:  c.Display.BuildWindow,
	}
}

// ControlConfig returns the control dispatcher settings.
func (c *Config) ControlConfig() control.Config {
	return control.Config{
		Window:         c.Control.Window,
		ReconcileDelay: c.Control.ReconcileDelay,
		PendingTimeout: c.Control.PendingTimeout,
	}
}
