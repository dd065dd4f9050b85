// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/discovery"
	"eload-service/internal/model"
	"eload-service/internal/protocol"
	"eload-service/pkg/driver"
)

// Config for the serial scanner
type Config struct {
	// Serial holds the line settings used for every probed port; the port
	// field is ignored
	Serial config.SerialConfig
	// PortPatterns are filepath.Match patterns on the port name
	PortPatterns []string
}

// Scanner probes the serial ports of the host for KEL loads
type Scanner struct {
	logger    *zap.Logger
	config    *Config
	listPorts func() ([]string, error)
	dial      discovery.LinkDialer
}

// NewScanner creates a serial scanner. A nil config probes the usual USB
// serial device names at the factory baud rate.
func NewScanner(logger *zap.Logger, cfg *Config) *Scanner {
	if cfg == nil {
		cfg = &Config{PortPatterns: DefaultPortPatterns()}
	}

	s := &Scanner{
		logger:    logger.With(zap.String("scanner", "serial")),
		config:    cfg,
		listPorts: protocol.ListPorts,
	}
	s.dial = s.dialPort
	return s
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable reports whether the host can enumerate serial ports
func (s *Scanner) IsAvailable() bool {
	_, err := s.listPorts()
	return err == nil
}

// Scan probes every matching port
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredLoad, error) {
	ports, err := s.listPorts()
	if err != nil {
		return nil, err
	}

	ports = s.filterPorts(ports)
	s.logger.Info("Probing serial ports", zap.Strings("ports", ports))

	return discovery.ProbeAddresses(ctx, model.ConnectionTypeSerial, ports, s.dial, s.logger)
}

func (s *Scanner) dialPort(port string) (driver.Link, error) {
	cfg := &config.DeviceConfig{
		ConnectionType: "serial",
		Serial:         s.config.Serial,
	}
	cfg.Serial.Port = port

	proto, err := protocol.CreateProtocol(cfg, s.logger)
	if err != nil {
		return nil, err
	}
	return protocol.NewLineChannel(proto, s.logger), nil
}

func (s *Scanner) filterPorts(ports []string) []string {
	if len(s.config.PortPatterns) == 0 {
		return ports
	}

	var filtered []string
	for _, port := range ports {
		name := port
		if runtime.GOOS != "windows" {
			name = filepath.Base(port)
		}
		for _, pattern := range s.config.PortPatterns {
			if ok, _ := filepath.Match(pattern, name); ok {
				filtered = append(filtered, port)
				break
			}
		}
	}
	return filtered
}

// DefaultPortPatterns matches the USB serial device names of the host OS
func DefaultPortPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM*"}
	case "darwin":
		return []string{"cu.usbmodem*", "cu.usbserial*"}
	default:
		return []string{"ttyACM*", "ttyUSB*"}
	}
}

