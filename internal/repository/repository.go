package repository

import (
	"context"
	"database/sql"
	"time"

	"modbus_console/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
	UpdatePassword(username, hash string) error
}

// EventFilter narrows an audit log query. Zero fields do not filter.
type EventFilter struct {
	From     time.Time // inclusive
	To       time.Time // inclusive
	Type     string
	Channel  string
	DeviceID string
	Limit    int // newest Limit events, still returned oldest first
}

type EventRepo interface {
	Append(ctx context.Context, e models.ConsoleEvent) error
	List(ctx context.Context, f EventFilter) ([]models.ConsoleEvent, error)
}

type Repository struct {
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
