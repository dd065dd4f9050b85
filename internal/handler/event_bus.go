// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"eload-service/internal/model"
	"eload-service/pkg/driver"
)

// EventBus fans load events out to subscribers
type EventBus struct {
	subscribers map[model.EventType][]chan *model.DeviceEvent
	events      chan *model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan *model.DeviceEvent),
		events:      make(chan *model.DeviceEvent, 1000),
		logger:      logger,
	}
}

// Start distributes events until Close is called
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.distributeEvent(event)
	}
}

// Close stops the distribution loop. Later events are dropped.
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if !eb.closed {
		eb.closed = true
		close(eb.events)
	}
}

// Publish publishes an event without blocking
func (eb *EventBus) Publish(event *model.DeviceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	if eb.closed {
		return
	}

	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to events of the given types
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) <-chan *model.DeviceEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan *model.DeviceEvent, 100)
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	}
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event *model.DeviceEvent) {
	eb.mutex.RLock()
	subscribers := eb.subscribers[event.EventType]
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// LoadEventHandler turns service notifications into bus events
type LoadEventHandler struct {
	deviceID string
	bus      *EventBus
	logger   *zap.Logger
}

// NewLoadEventHandler creates a handler publishing to bus
func NewLoadEventHandler(deviceID string, bus *EventBus, logger *zap.Logger) *LoadEventHandler {
	return &LoadEventHandler{
		deviceID: deviceID,
		bus:      bus,
		logger:   logger,
	}
}

var _ driver.EventHandler = (*LoadEventHandler)(nil)

// OnCommandCompleted publishes a command outcome
func (leh *LoadEventHandler) OnCommandCompleted(result *driver.CommandResult) {
	eventType := model.EventCommandCompleted
	if !result.Success {
		eventType = model.EventCommandFailed
	}

	data := model.JSONObject{
		"operation":   result.Operation,
		"success":     result.Success,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Request != nil {
		data["request"] = result.Request
	}
	if !result.Success {
		data["error_code"] = result.ErrorCode
		data["error_message"] = result.ErrorMessage
	}

	leh.bus.Publish(model.NewDeviceEvent(eventType, leh.deviceID, data))
}

// OnMeasurement publishes a measurement sample
func (leh *LoadEventHandler) OnMeasurement(sample *driver.Measurement) {
	leh.bus.Publish(model.NewDeviceEvent(model.EventMeasurement, leh.deviceID, model.JSONObject{
		"current":     sample.Current,
		"voltage":     sample.Voltage,
		"power":       sample.Power,
		"measured_at": sample.Timestamp,
	}))
}

// OnLinkError publishes a link failure
func (leh *LoadEventHandler) OnLinkError(err error) {
	leh.bus.Publish(model.NewDeviceEvent(model.EventLinkError, leh.deviceID, model.JSONObject{
		"error": err.Error(),
	}))

	leh.logger.Warn("Load link error event published",
		zap.String("device_id", leh.deviceID),
		zap.Error(err),
	)
}

// OnStatusChanged publishes a link status change
func (leh *LoadEventHandler) OnStatusChanged(oldStatus, newStatus string) {
	leh.bus.Publish(model.NewDeviceEvent(model.EventStatusChange, leh.deviceID, model.JSONObject{
		"old_status": oldStatus,
		"new_status": newStatus,
	}))

	leh.logger.Info("Load status change event published",
		zap.String("device_id", leh.deviceID),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus),
	)
}
