package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"modbus_console/internal/models"
	"modbus_console/internal/repository"
)

// memEventRepo records appended events.
type memEventRepo struct {
	mu     sync.Mutex
	events []models.ConsoleEvent
	err    error
}

func (m *memEventRepo) Append(_ context.Context, e models.ConsoleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEventRepo) List(context.Context, repository.EventFilter) ([]models.ConsoleEvent, error) {
	return nil, nil
}

func (m *memEventRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEventRecorder_AssignsIDsAndStores(t *testing.T) {
	repo := &memEventRepo{}
	rec := NewEventRecorder(repo, 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.Record(models.ConsoleEvent{Type: models.EventConnected, Channel: "system"})
	rec.Record(models.ConsoleEvent{EventID: "fixed", Type: models.EventControl, DeviceID: "7"})

	deadline := time.Now().Add(time.Second)
	for repo.len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("events not stored, got %d", repo.len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if repo.events[0].EventID == "" || repo.events[0].OccurredAt.IsZero() {
		t.Fatalf("expected generated id and time, got %+v", repo.events[0])
	}
	if repo.events[1].EventID != "fixed" {
		t.Fatalf("expected caller id kept, got %q", repo.events[1].EventID)
	}
}

func TestEventRecorder_DropsWhenFull(t *testing.T) {
	repo := &memEventRepo{}
	rec := NewEventRecorder(repo, 1, nil, nil)

	// Nothing drains yet: the second event is dropped instead of blocking.
	rec.Record(models.ConsoleEvent{Type: models.EventConnected})
	rec.Record(models.ConsoleEvent{Type: models.EventDisconnected})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.len() != 1 || repo.events[0].Type != models.EventConnected {
		t.Fatalf("expected only the first event flushed, got %+v", repo.events)
	}
}

func TestEventRecorder_WriteErrorDoesNotStop(t *testing.T) {
	repo := &memEventRepo{err: errors.New("disk full")}
	rec := NewEventRecorder(repo, 2, nil, nil)
	rec.Record(models.ConsoleEvent{Type: models.EventGiveUp})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run should swallow write errors, got %v", err)
	}
}
