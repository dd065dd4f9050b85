// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"eload-service/internal/model"
)

// SerialConnection implements DeviceProtocol for the USB CDC and RS232 ports
type SerialConnection struct {
	config  *SerialConfig
	port    serial.Port
	logger  *zap.Logger
	mutex   sync.RWMutex
	isOpen  bool
	statsMu sync.Mutex
	stats   ProtocolStats

	// openPort is serial.Open outside of tests
	openPort func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
		openPort: serial.Open,
	}
}

// serialMode translates the config into a go.bug.st/serial mode
func serialMode(config *SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}

	switch config.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", config.StopBits)
	}

	switch config.Parity {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", config.Parity)
	}

	return mode, nil
}

// Open opens the serial connection
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	sc.logger.Info("Opening serial port",
		zap.String("port", sc.config.Port),
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	mode, err := serialMode(sc.config)
	if err != nil {
		return err
	}

	port, err := sc.openPort(sc.config.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// Stale bytes from a previous session would shift every reply by one
	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Warn("Failed to flush serial input buffer", zap.Error(err))
	}

	sc.port = port
	sc.isOpen = true
	sc.withStats(func(s *ProtocolStats) {
		s.IsConnected = true
		s.LastActivity = time.Now()
	})

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false
	sc.withStats(func(s *ProtocolStats) { s.IsConnected = false })

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("serial port: %w", ErrNotOpen)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.withStats(func(s *ProtocolStats) { s.ErrorCount++ })
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	duration := time.Since(startTime)
	sc.withStats(func(s *ProtocolStats) {
		s.BytesWritten += int64(n)
		s.OperationCount++
		s.LastActivity = time.Now()
		s.updateAverageLatency(duration)
	})

	sc.logger.Debug("Serial write completed", zap.ByteString("data", data))
	return nil
}

// Read reads data from the serial port. An expired read timeout returns an
// empty slice and no error.
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return nil, fmt.Errorf("serial port: %w", ErrNotOpen)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		buffer := make([]byte, maxBytes)
		n, err := sc.port.Read(buffer)
		if err != nil && !errors.Is(err, io.EOF) {
			done <- result{err: fmt.Errorf("failed to read from serial port: %w", err)}
			return
		}
		done <- result{data: buffer[:n]}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			sc.withStats(func(s *ProtocolStats) { s.ErrorCount++ })
			return nil, r.err
		}

		sc.withStats(func(s *ProtocolStats) {
			s.BytesRead += int64(len(r.data))
			s.OperationCount++
			s.LastActivity = time.Now()
		})
		return r.data, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Address returns the port name
func (sc *SerialConnection) Address() string {
	return sc.config.Port
}

// Ping tests the connection with an empty command line, which the load ignores
func (sc *SerialConnection) Ping(ctx context.Context) error {
	if !sc.IsOpen() {
		return fmt.Errorf("serial port: %w", ErrNotOpen)
	}
	return sc.Write(ctx, []byte("\n"))
}

// Stats returns a snapshot of the connection statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	sc.statsMu.Lock()
	defer sc.statsMu.Unlock()
	return sc.stats
}

func (sc *SerialConnection) withStats(fn func(s *ProtocolStats)) {
	sc.statsMu.Lock()
	fn(&sc.stats)
	sc.statsMu.Unlock()
}

// ListPorts returns the serial ports present on the host
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
