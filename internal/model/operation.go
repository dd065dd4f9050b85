// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandStatus represents the outcome of a command sent to the load
type CommandStatus string

const (
	CommandStatusSuccess  CommandStatus = "SUCCESS"
	CommandStatusRejected CommandStatus = "REJECTED" // refused before the command line was sent
	CommandStatusFailed   CommandStatus = "FAILED"
	CommandStatusTimeout  CommandStatus = "TIMEOUT"
)

// CommandRecord is one row of the command audit log
type CommandRecord struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	DeviceID     string        `json:"device_id" db:"device_id"`
	Operation    string        `json:"operation" db:"operation"`
	Parameters   JSONObject    `json:"parameters" db:"parameters"`
	Status       CommandStatus `json:"status" db:"status"`
	ErrorCode    *string       `json:"error_code" db:"error_code"`
	ErrorMessage *string       `json:"error_message" db:"error_message"`
	DurationMs   int64         `json:"duration_ms" db:"duration_ms"`
	RequestID    *string       `json:"request_id" db:"request_id"`
	StartedAt    time.Time     `json:"started_at" db:"started_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// IsSuccess checks if the command reached the device and succeeded
func (r *CommandRecord) IsSuccess() bool {
	return r.Status == CommandStatusSuccess
}

// CommandFilter narrows an audit log query
type CommandFilter struct {
	Operation string
	Status    CommandStatus
	Since     *time.Time
	Limit     int
	Offset    int
}
