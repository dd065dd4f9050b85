// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event pushed to stream subscribers
type EventType string

const (
	EventMeasurement      EventType = "MEASUREMENT"
	EventCommandCompleted EventType = "COMMAND_COMPLETED"
	EventCommandFailed    EventType = "COMMAND_FAILED"
	EventLinkError        EventType = "LINK_ERROR"
	EventStatusChange     EventType = "STATUS_CHANGE"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	DeviceID  string     `json:"device_id"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent stamps a new event
func NewDeviceEvent(eventType EventType, deviceID string, data JSONObject) *DeviceEvent {
	severity := "INFO"
	switch eventType {
	case EventCommandFailed:
		severity = "WARNING"
	case EventLinkError:
		severity = "ERROR"
	}
	return &DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "eload-service",
		Severity:  severity,
	}
}
