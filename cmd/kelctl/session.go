package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"eload-service/internal/config"
	"eload-service/internal/driver"
	"eload-service/internal/protocol"
	"eload-service/internal/service"
	"eload-service/internal/utils"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

// session is one connection to the load for the lifetime of a command
type session struct {
	svc     *service.LoadService
	logger  *zap.Logger
	timeout time.Duration
}

// openSession connects to the load described by the configuration and the
// override flags. The audit log is disabled.
func openSession(flags *globalFlags) (*session, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, flags)

	logger := zap.NewNop()
	if flags.verbose {
		cfg.Logging.Output = "stderr"
		cfg.Logging.Format = "console"
		cfg.Logging.Level = "debug"
		if logger, err = utils.NewLogger(&cfg.Logging); err != nil {
			return nil, err
		}
	}

	proto, err := protocol.CreateProtocol(&cfg.Device, logger)
	if err != nil {
		return nil, err
	}

	registry := driver.NewRegistry(logger)
	driver.RegisterDefaultDrivers(registry, logger)

	svc, err := service.NewLoadService(cfg, protocol.NewLineChannel(proto, logger), registry, nil, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		_ = svc.Stop()
		return nil, err
	}

	return &session{svc: svc, logger: logger, timeout: flags.timeout}, nil
}

// applyOverrides points the configuration at the flag supplied connection
// and turns off the background loops a one-shot command does not need
func applyOverrides(cfg *config.Config, flags *globalFlags) {
	switch {
	case flags.port != "":
		cfg.Device.ConnectionType = "serial"
		cfg.Device.Serial.Port = flags.port
	case flags.host != "":
		cfg.Device.ConnectionType = "udp"
		cfg.Device.Network.Host = flags.host
	}

	cfg.Device.OperationTimeout = flags.timeout
	cfg.Device.HealthCheckInterval = 0
	cfg.Device.MeasurementInterval = 24 * time.Hour
}

func (s *session) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *session) Close() {
	_ = s.svc.Stop()
	_ = s.logger.Sync()
}

// withSession opens a session, runs fn and closes the session
func withSession(flags *globalFlags, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(flags)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := s.context()
	defer cancel()
	return fn(ctx, s)
}

func validateOutput(format string) error {
	if format != outputYAML && format != outputJSON {
		return fmt.Errorf("invalid output format '%s'; must be 'yaml' or 'json'", format)
	}
	return nil
}

// printResult renders v using its JSON field names in either format
func printResult(w io.Writer, format string, v interface{}) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return enc.Close()
}

// readYAMLFile decodes a YAML document from path, or stdin when path is "-"
func readYAMLFile(path string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
