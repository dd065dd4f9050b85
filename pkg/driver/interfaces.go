// pkg/driver/interfaces.go
package driver

import (
	"context"
)

// Transport is the line-oriented link to an electronic load. Implementations
// are expected to be used by a single caller at a time.
type Transport interface {
	// Send writes one command line; the terminator is appended by the transport
	Send(ctx context.Context, line string) error

	// Receive reads exactly lines terminated lines and joins them with "\n"
	// without the trailing terminator
	Receive(ctx context.Context, lines int) (string, error)
}

// Link is a Transport that owns a physical connection
type Link interface {
	Transport

	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Stats returns a snapshot of the link counters
	Stats() LinkStats
}

// EventHandler receives service level notifications
type EventHandler interface {
	OnCommandCompleted(result *CommandResult)
	OnMeasurement(sample *Measurement)
	OnLinkError(err error)
	OnStatusChanged(oldStatus, newStatus string)
}
