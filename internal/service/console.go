package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"modbus_console/internal/channel"
	"modbus_console/internal/control"
	"modbus_console/internal/models"
	"modbus_console/internal/presentation"
	"modbus_console/internal/view"
)

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrOutOfRange      = errors.New("value outside control limits")
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrInvalidRegister = errors.New("invalid register")
)

// Core is the console engine the services drive.
type Core interface {
	Model() *view.Model
	Catalog() *presentation.Catalog
	Activate(ctx context.Context, id string) error
	Control(ctx context.Context, a control.Action) error
	Refresh(ctx context.Context, id string) error
	Channels(ctx context.Context) ([]channel.Stats, error)
	Reconnect(ctx context.Context, kind channel.Kind) error
	Pending(ctx context.Context, id string) ([]models.PendingControl, error)
}

// ConsoleService validates operator requests and hands them to the core.
type ConsoleService struct {
	core Core
}

func NewConsoleService(core Core) *ConsoleService {
	return &ConsoleService{core: core}
}

func (s *ConsoleService) View() view.Snapshot {
	return s.core.Model().Snapshot()
}

func (s *ConsoleService) System() models.SystemStatus {
	return s.core.Model().Snapshot().System
}

func (s *ConsoleService) Device(ctx context.Context, id string) (DeviceDetail, error) {
	dev, ok := s.core.Model().Device(id)
	if !ok {
		return DeviceDetail{}, fmt.Errorf("device %q: %w", id, ErrDeviceNotFound)
	}
	pending, err := s.core.Pending(ctx, id)
	if err != nil {
		return DeviceDetail{}, err
	}
	if pending == nil {
		pending = []models.PendingControl{}
	}
	return DeviceDetail{DeviceView: dev, Pending: pending}, nil
}

// Control checks the register kind, integrality and catalog limits before dispatching.
func (s *ConsoleService) Control(ctx context.Context, deviceID string, p ControlParams) error {
	if _, ok := s.core.Model().Device(deviceID); !ok {
		return fmt.Errorf("device %q: %w", deviceID, ErrDeviceNotFound)
	}
	kind, err := models.ParseRegisterKind(p.RegisterType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegister, err)
	}
	if p.Address < 0 {
		return fmt.Errorf("%w: negative address %d", ErrInvalidRegister, p.Address)
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return fmt.Errorf("%w: value must be finite", ErrOutOfRange)
	}

	key := models.RegisterKey{Kind: kind, Address: p.Address}
	if kind == models.HoldingRegister {
		if p.Value != math.Trunc(p.Value) {
			return fmt.Errorf("%w: holding registers take whole raw values", ErrOutOfRange)
		}
		lo, hi := int64(0), int64(control.MaxRegisterValue)
		if cat := s.core.Catalog(); cat != nil {
			if spec, ok := cat.Control(deviceID, key); ok {
				lo, hi = max(lo, spec.Min), min(hi, spec.Max)
			}
		}
		// Compared as floats so huge values never go through an int64 conversion.
		if p.Value < float64(lo) || p.Value > float64(hi) {
			return fmt.Errorf("%w: %s accepts %d..%d", ErrOutOfRange, key, lo, hi)
		}
	}

	return s.core.Control(ctx, control.Action{DeviceID: deviceID, Kind: kind, Address: p.Address, Value: p.Value})
}

func (s *ConsoleService) Activate(ctx context.Context, id string) error {
	return s.core.Activate(ctx, id)
}

func (s *ConsoleService) Refresh(ctx context.Context, id string) error {
	return s.core.Refresh(ctx, id)
}

func (s *ConsoleService) Channels(ctx context.Context) ([]channel.Stats, error) {
	return s.core.Channels(ctx)
}

func (s *ConsoleService) Reconnect(ctx context.Context, kind string) error {
	k := channel.Kind(kind)
	if k != channel.KindSystem && k != channel.KindDevice {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, kind)
	}
	return s.core.Reconnect(ctx, k)
}
