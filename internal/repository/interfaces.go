// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eload-service/internal/model"
)

// CommandRepository defines command audit log access
type CommandRepository interface {
	Create(ctx context.Context, record *model.CommandRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.CommandRecord, error)
	List(ctx context.Context, filter *model.CommandFilter) ([]*model.CommandRecord, int, error)
	GetStats(ctx context.Context, since *time.Time) (*CommandStats, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// CommandStats summarizes the audit log
type CommandStats struct {
	TotalCommands int                         `json:"total_commands"`
	Successful    int                         `json:"successful"`
	Rejected      int                         `json:"rejected"`
	Failed        int                         `json:"failed"`
	AvgDurationMs float64                     `json:"average_duration_ms"`
	ByStatus      map[model.CommandStatus]int `json:"by_status"`
	ByOperation   map[string]int              `json:"by_operation"`
}

// NotFoundError is returned when no record matches
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return "command record not found with id: " + e.ID.String()
}
