package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"modbus_console/internal/logger"
	"modbus_console/internal/metrics"
	"modbus_console/internal/models"
	"modbus_console/internal/repository"
)

const (
	defaultRecorderBuffer = 256
	recorderWriteTimeout  = 2 * time.Second
)

// EventRecorder writes audit events off the console loop. Record never blocks; when the buffer is
// full the event is dropped and counted.
type EventRecorder struct {
	repo    repository.EventRepo
	log     *logger.Logger
	metrics *metrics.Metrics
	events  chan models.ConsoleEvent
}

func NewEventRecorder(repo repository.EventRepo, buffer int, log *logger.Logger, m *metrics.Metrics) *EventRecorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	return &EventRecorder{
		repo:    repo,
		log:     logger.OrNop(log),
		metrics: m,
		events:  make(chan models.ConsoleEvent, buffer),
	}
}

// Record queues ev. It is safe to call from the console loop.
func (r *EventRecorder) Record(ev models.ConsoleEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case r.events <- ev:
	default:
		r.metrics.IncAudit("dropped")
		r.log.Warnw("audit_event_dropped", "type", ev.Type, "channel", ev.Channel, "device_id", ev.DeviceID)
	}
}

// Run stores queued events until ctx ends, then flushes what is left. Writes are not bound to
// ctx so shutdown events still reach the database.
func (r *EventRecorder) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.events:
			r.write(ev)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *EventRecorder) flush() {
	for {
		select {
		case ev := <-r.events:
			r.write(ev)
		default:
			return
		}
	}
}

func (r *EventRecorder) write(ev models.ConsoleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()
	if err := r.repo.Append(ctx, ev); err != nil {
		r.metrics.IncAudit("failed")
		r.log.Errorw("audit_event_write_failed", "type", ev.Type, "event_id", ev.EventID, "err", err)
		return
	}
	r.metrics.IncAudit("stored")
}
