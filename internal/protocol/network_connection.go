// internal/protocol/network_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"eload-service/internal/model"
)

// NetworkConnection implements DeviceProtocol over the LAN port of the load.
// The KEL10x answers SCPI on UDP; TCP is accepted for serial-to-ethernet
// bridges.
type NetworkConnection struct {
	config  *NetworkConfig
	conn    net.Conn
	logger  *zap.Logger
	mutex   sync.RWMutex
	isOpen  bool
	statsMu sync.Mutex
	stats   ProtocolStats
}

// NewNetworkConnection creates a new UDP or TCP connection
func NewNetworkConnection(config *NetworkConfig, logger *zap.Logger) *NetworkConnection {
	return &NetworkConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", config.Network),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open dials the load
func (nc *NetworkConnection) Open(ctx context.Context) error {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	if nc.isOpen {
		return nil
	}

	network := strings.ToLower(nc.config.Network)
	if network != "udp" && network != "tcp" {
		return fmt.Errorf("unsupported network: %s", nc.config.Network)
	}

	nc.logger.Info("Opening network connection")

	dialer := &net.Dialer{Timeout: nc.config.Timeout}
	if network == "tcp" {
		dialer.KeepAlive = 30 * time.Second
	}

	conn, err := dialer.DialContext(ctx, network, nc.Address())
	if err != nil {
		nc.logger.Error("Failed to open network connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", nc.Address(), err)
	}

	nc.conn = conn
	nc.isOpen = true
	nc.withStats(func(s *ProtocolStats) {
		s.IsConnected = true
		s.LastActivity = time.Now()
	})

	nc.logger.Info("Network connection opened successfully")
	return nil
}

// Close closes the connection
func (nc *NetworkConnection) Close() error {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	if !nc.isOpen || nc.conn == nil {
		return nil
	}

	err := nc.conn.Close()
	nc.conn = nil
	nc.isOpen = false
	nc.withStats(func(s *ProtocolStats) { s.IsConnected = false })

	if err != nil {
		nc.logger.Error("Failed to close network connection", zap.Error(err))
		return fmt.Errorf("failed to close network connection: %w", err)
	}

	nc.logger.Info("Network connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (nc *NetworkConnection) IsOpen() bool {
	nc.mutex.RLock()
	defer nc.mutex.RUnlock()
	return nc.isOpen && nc.conn != nil
}

// Write sends data; on UDP every call is one datagram
func (nc *NetworkConnection) Write(ctx context.Context, data []byte) error {
	nc.mutex.RLock()
	defer nc.mutex.RUnlock()

	if !nc.isOpen || nc.conn == nil {
		return fmt.Errorf("network connection: %w", ErrNotOpen)
	}

	deadline := time.Now().Add(nc.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	nc.conn.SetWriteDeadline(deadline)

	startTime := time.Now()
	n, err := nc.conn.Write(data)
	if err != nil {
		nc.withStats(func(s *ProtocolStats) { s.ErrorCount++ })
		nc.logger.Error("Network write failed", zap.Error(err))
		return fmt.Errorf("failed to write to network connection: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	duration := time.Since(startTime)
	nc.withStats(func(s *ProtocolStats) {
		s.BytesWritten += int64(n)
		s.OperationCount++
		s.LastActivity = time.Now()
		s.updateAverageLatency(duration)
	})

	nc.logger.Debug("Network write completed", zap.ByteString("data", data))
	return nil
}

// Read waits up to the configured timeout for data. An expired timeout
// returns an empty slice and no error, like the serial port does.
func (nc *NetworkConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	nc.mutex.RLock()
	defer nc.mutex.RUnlock()

	if !nc.isOpen || nc.conn == nil {
		return nil, fmt.Errorf("network connection: %w", ErrNotOpen)
	}

	deadline := time.Now().Add(nc.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	nc.conn.SetReadDeadline(deadline)

	buffer := make([]byte, maxBytes)
	n, err := nc.conn.Read(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return []byte{}, nil
		}
		nc.withStats(func(s *ProtocolStats) { s.ErrorCount++ })
		return nil, fmt.Errorf("failed to read from network connection: %w", err)
	}

	nc.withStats(func(s *ProtocolStats) {
		s.BytesRead += int64(n)
		s.OperationCount++
		s.LastActivity = time.Now()
	})
	return buffer[:n], nil
}

// GetProtocolType returns the protocol type
func (nc *NetworkConnection) GetProtocolType() model.ConnectionType {
	if strings.EqualFold(nc.config.Network, "tcp") {
		return model.ConnectionTypeTCP
	}
	return model.ConnectionTypeUDP
}

// Address returns host:port of the load
func (nc *NetworkConnection) Address() string {
	return net.JoinHostPort(nc.config.Host, strconv.Itoa(nc.config.Port))
}

// Ping tests the connection with an empty command line
func (nc *NetworkConnection) Ping(ctx context.Context) error {
	if !nc.IsOpen() {
		return fmt.Errorf("network connection: %w", ErrNotOpen)
	}
	return nc.Write(ctx, []byte("\n"))
}

// Stats returns a snapshot of the connection statistics
func (nc *NetworkConnection) Stats() ProtocolStats {
	nc.statsMu.Lock()
	defer nc.statsMu.Unlock()
	return nc.stats
}

func (nc *NetworkConnection) withStats(fn func(s *ProtocolStats)) {
	nc.statsMu.Lock()
	fn(&nc.stats)
	nc.statsMu.Unlock()
}
