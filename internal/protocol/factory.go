// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/model"
)

// CreateProtocol creates a protocol based on the device configuration
func CreateProtocol(cfg *config.DeviceConfig, logger *zap.Logger) (DeviceProtocol, error) {
	connectionType, ok := model.ParseConnectionType(cfg.ConnectionType)
	if !ok {
		return nil, fmt.Errorf("unsupported protocol type: %s", cfg.ConnectionType)
	}

	switch connectionType {
	case model.ConnectionTypeSerial:
		return createSerialProtocol(&cfg.Serial, logger)
	default:
		return createNetworkProtocol(connectionType, &cfg.Network, logger)
	}
}

// createSerialProtocol creates a serial protocol
func createSerialProtocol(cfg *config.SerialConfig, logger *zap.Logger) (DeviceProtocol, error) {
	serialConfig := &SerialConfig{
		Port:     cfg.Port,
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  time.Second,
	}

	if serialConfig.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if cfg.BaudRate > 0 {
		serialConfig.BaudRate = cfg.BaudRate
	}
	if cfg.DataBits > 0 {
		serialConfig.DataBits = cfg.DataBits
	}
	if cfg.StopBits > 0 {
		serialConfig.StopBits = cfg.StopBits
	}
	if cfg.Parity != "" {
		serialConfig.Parity = cfg.Parity
	}
	if cfg.Timeout > 0 {
		serialConfig.Timeout = cfg.Timeout
	}

	if _, err := serialMode(serialConfig); err != nil {
		return nil, err
	}

	logger.Info("Creating serial protocol",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger), nil
}

// createNetworkProtocol creates a UDP or TCP protocol
func createNetworkProtocol(connectionType model.ConnectionType, cfg *config.NetworkConfig, logger *zap.Logger) (DeviceProtocol, error) {
	networkConfig := &NetworkConfig{
		Network: "udp",
		Host:    cfg.Host,
		Port:    18190,
		Timeout: 2 * time.Second,
	}
	if connectionType == model.ConnectionTypeTCP {
		networkConfig.Network = "tcp"
	}

	if networkConfig.Host == "" {
		return nil, fmt.Errorf("network host is required")
	}
	if cfg.Port != 0 {
		if cfg.Port < 1 || cfg.Port > 65535 {
			return nil, fmt.Errorf("invalid port number: %d", cfg.Port)
		}
		networkConfig.Port = cfg.Port
	}
	if cfg.Timeout > 0 {
		networkConfig.Timeout = cfg.Timeout
	}

	logger.Info("Creating network protocol",
		zap.String("network", networkConfig.Network),
		zap.String("host", networkConfig.Host),
		zap.Int("port", networkConfig.Port),
	)

	return NewNetworkConnection(networkConfig, logger), nil
}
