// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// ConnectionType represents how the load is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUDP    ConnectionType = "UDP"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// ParseConnectionType accepts the lower case config form as well
func ParseConnectionType(s string) (ConnectionType, bool) {
	switch ConnectionType(strings.ToUpper(strings.TrimSpace(s))) {
	case ConnectionTypeSerial:
		return ConnectionTypeSerial, true
	case ConnectionTypeUDP:
		return ConnectionTypeUDP, true
	case ConnectionTypeTCP:
		return ConnectionTypeTCP, true
	}
	return "", false
}

// DeviceStatus represents the link state of the load
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusError      DeviceStatus = "ERROR"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// LoadDevice describes the electronic load the service is attached to
type LoadDevice struct {
	DeviceID       string         `json:"device_id"`
	Model          string         `json:"model"`
	Identity       string         `json:"identity,omitempty"`
	ConnectionType ConnectionType `json:"connection_type"`
	Address        string         `json:"address"`
	Status         DeviceStatus   `json:"status"`
	LastSeen       *time.Time     `json:"last_seen,omitempty"`
}

// IsOnline checks if the load is currently reachable
func (d *LoadDevice) IsOnline() bool {
	return d.Status == DeviceStatusOnline
}

// DeviceHealth represents link health metrics
type DeviceHealth struct {
	DeviceID      string     `json:"device_id"`
	HealthScore   int        `json:"health_score"`
	ResponseTime  *int64     `json:"response_time_ms"`
	ErrorRate     *float64   `json:"error_rate"`
	LastErrorTime *time.Time `json:"last_error_time"`
	RecordedAt    time.Time  `json:"recorded_at"`
}
