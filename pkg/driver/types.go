// pkg/driver/types.go
package driver

import (
	"time"
)

// LinkStats contains link-level counters
type LinkStats struct {
	LinesWritten   int64         `json:"lines_written"`
	LinesRead      int64         `json:"lines_read"`
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// Measurement is one sample of the :MEAS:* readings. A nil field means the
// device answered with an empty or non-numeric reply.
type Measurement struct {
	Current   *float64  `json:"current"`
	Voltage   *float64  `json:"voltage"`
	Power     *float64  `json:"power"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandResult describes one facade call executed by the service
type CommandResult struct {
	Operation    string        `json:"operation"`
	Request      interface{}   `json:"request,omitempty"`
	Response     interface{}   `json:"response,omitempty"`
	Success      bool          `json:"success"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

// HealthMetrics contains link health information
type HealthMetrics struct {
	HealthScore     int           `json:"health_score"` // 0-100
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}
