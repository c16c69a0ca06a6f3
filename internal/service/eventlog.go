package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modbus_console/internal/models"
	"modbus_console/internal/repository"
)

// maxLogLimit caps a single audit log page.
const maxLogLimit = 1000

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

// ErrInvalidFilter wraps every log filter validation failure.
var ErrInvalidFilter = errors.New("invalid log filter")

var (
	errInvalidTimeRange = fmt.Errorf("%w: From must be <= To", ErrInvalidFilter)
	errInvalidLimit     = fmt.Errorf("%w: limit must be >= 0", ErrInvalidFilter)
	errInvalidChannel   = fmt.Errorf("%w: channel must be system or device", ErrInvalidFilter)
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates them.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	out := repository.EventFilter{
		From:     normalizeToUTC(f.From),
		To:       normalizeToUTC(f.To),
		Type:     normalizeEventType(f.Type),
		Channel:  strings.ToLower(strings.TrimSpace(f.Channel)),
		DeviceID: strings.TrimSpace(f.DeviceID),
		Limit:    f.Limit,
	}

	if !out.From.IsZero() && !out.To.IsZero() && out.From.After(out.To) {
		return repository.EventFilter{}, errInvalidTimeRange
	}
	if out.Limit < 0 {
		return repository.EventFilter{}, errInvalidLimit
	}
	if out.Limit > maxLogLimit {
		out.Limit = maxLogLimit
	}
	if out.Channel != "" && out.Channel != "system" && out.Channel != "device" {
		return repository.EventFilter{}, errInvalidChannel
	}
	return out, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.ConsoleEvent, error) {
	filter, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, filter)
}

// IsValidationError reports whether err came from filter validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidFilter)
}
