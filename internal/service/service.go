package service

import (
	"context"
	"time"

	"modbus_console/internal/channel"
	"modbus_console/internal/logger"
	"modbus_console/internal/metrics"
	"modbus_console/internal/models"
	"modbus_console/internal/repository"
	"modbus_console/internal/view"
)

type Authorization interface {
	EnsureOperator(username, passwordHash string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Console exposes the live view and operator actions.
type Console interface {
	View() view.Snapshot
	System() models.SystemStatus
	Device(ctx context.Context, id string) (DeviceDetail, error)
	Control(ctx context.Context, deviceID string, p ControlParams) error
	Activate(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) error
	Channels(ctx context.Context) ([]channel.Stats, error)
	Reconnect(ctx context.Context, kind string) error
}

// EventLog exposes the audit log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ConsoleEvent, error)
}

// Recorder accepts audit events from the console loop.
type Recorder interface {
	Record(ev models.ConsoleEvent)
	Run(ctx context.Context) error
}

// AuthConfig configures token signing.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// Service aggregates all sub-services.
type Service struct {
	Console
	EventLog
	Recorder
	Authorization
}

// NewService wires the repository layer into concrete services. The console core is attached
// later with AttachConsole because it needs the recorder first.
func NewService(repos *repository.Repository, auth AuthConfig, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		EventLog:      NewEventLogService(repos.EventRepo),
		Recorder:      NewEventRecorder(repos.EventRepo, defaultRecorderBuffer, log, m),
		Authorization: NewAuthService(repos.Auth, auth.SigningKey, auth.TokenTTL),
	}
}

func (s *Service) AttachConsole(core Core) {
	s.Console = NewConsoleService(core)
}
