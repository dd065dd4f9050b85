// internal/service/load_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/driver"
	"eload-service/internal/driver/korad"
	"eload-service/internal/model"
	"eload-service/internal/protocol"
	"eload-service/internal/repository"
	"eload-service/internal/utils"
	pkgdriver "eload-service/pkg/driver"
)

// auditWriteTimeout bounds the audit insert after the request context is gone
const auditWriteTimeout = 2 * time.Second

// ErrUnknownSetting is returned for a toggle name the load does not have
var ErrUnknownSetting = errors.New("unknown setting")

// ErrAuditDisabled is returned by the audit queries when no database is configured
var ErrAuditDisabled = errors.New("command audit log is disabled")

// LoadService owns the link to the electronic load. All device access goes
// through it and is serialized, since the load answers one command at a time.
type LoadService struct {
	cfg         *config.Config
	link        pkgdriver.Link
	load        *korad.Load
	commandRepo repository.CommandRepository

	logger       *utils.ServiceLogger
	deviceLogger *utils.DeviceLogger
	auditLogger  *utils.AuditLogger

	// mu serializes every exchange with the load
	mu sync.Mutex

	stateMu  sync.RWMutex
	device   model.LoadDevice
	counters healthCounters
	handlers []pkgdriver.EventHandler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type healthCounters struct {
	total         int64
	errors        int64
	totalLatency  time.Duration
	lastErrorTime *time.Time
}

// NewLoadService creates the service for the configured load. A nil
// commandRepo disables the audit log.
func NewLoadService(
	cfg *config.Config,
	link pkgdriver.Link,
	registry *driver.Registry,
	commandRepo repository.CommandRepository,
	logger *zap.Logger,
) (*LoadService, error) {
	deviceLogger := utils.NewDeviceLogger(logger, cfg.Device.ID, cfg.Device.Model)

	load, err := registry.CreateLoad(cfg.Device.Model, link, deviceLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create load driver: %w", err)
	}

	connType, _ := model.ParseConnectionType(cfg.Device.ConnectionType)

	return &LoadService{
		cfg:          cfg,
		link:         link,
		load:         load,
		commandRepo:  commandRepo,
		logger:       utils.NewServiceLogger(logger, "load-service"),
		deviceLogger: deviceLogger,
		auditLogger:  utils.NewAuditLogger(logger),
		device: model.LoadDevice{
			DeviceID:       cfg.Device.ID,
			Model:          cfg.Device.Model,
			ConnectionType: connType,
			Address:        cfg.GetDeviceAddr(),
			Status:         model.DeviceStatusOffline,
		},
		stopCh: make(chan struct{}),
	}, nil
}

// AddEventHandler registers a receiver for command, measurement and link events
func (s *LoadService) AddEventHandler(h pkgdriver.EventHandler) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Start opens the link and starts the background loops. The loops run even
// when the first connection attempt fails; the health loop keeps retrying.
func (s *LoadService) Start(ctx context.Context) error {
	err := s.connect(ctx)

	s.wg.Add(1)
	go s.measurementLoop()
	if s.cfg.Device.HealthCheckInterval > 0 {
		s.wg.Add(1)
		go s.healthLoop()
	}
	return err
}

// Stop stops the background loops and closes the link
func (s *LoadService) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setStatus(model.DeviceStatusOffline)
	if err := s.link.Close(); err != nil {
		return fmt.Errorf("failed to close link: %w", err)
	}
	s.deviceLogger.LogConnection("disconnect", true, nil)
	return nil
}

// Device returns a snapshot of the load description
func (s *LoadService) Device() model.LoadDevice {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.device
}

// LinkStats returns the link counters
func (s *LoadService) LinkStats() pkgdriver.LinkStats {
	return s.link.Stats()
}

// Health returns health metrics computed from recent exchanges
func (s *LoadService) Health() *model.DeviceHealth {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	health := &model.DeviceHealth{
		DeviceID:      s.device.DeviceID,
		LastErrorTime: s.counters.lastErrorTime,
		RecordedAt:    time.Now(),
	}

	if s.counters.total > 0 {
		errorRate := float64(s.counters.errors) / float64(s.counters.total)
		avg := (s.counters.totalLatency / time.Duration(s.counters.total)).Milliseconds()
		health.ErrorRate = &errorRate
		health.ResponseTime = &avg
		health.HealthScore = int((1 - errorRate) * 100)
	}
	if s.device.Status != model.DeviceStatusOnline {
		health.HealthScore = 0
	}
	return health
}

// connect opens the link and reads the identity string
func (s *LoadService) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setStatus(model.DeviceStatusConnecting)

	openCtx, cancel := context.WithTimeout(ctx, s.cfg.Device.OperationTimeout)
	defer cancel()

	if !s.link.IsOpen() {
		if err := s.link.Open(openCtx); err != nil {
			s.deviceLogger.LogConnection("connect", false, err)
			s.setStatus(model.DeviceStatusError)
			return fmt.Errorf("failed to connect to load: %w", err)
		}
	}

	identity, err := s.load.Identity(openCtx)
	if err != nil {
		s.deviceLogger.LogConnection("identify", false, err)
		s.setStatus(model.DeviceStatusError)
		return fmt.Errorf("failed to identify load: %w", err)
	}

	now := time.Now()
	s.stateMu.Lock()
	s.device.Identity = identity
	s.device.LastSeen = &now
	s.stateMu.Unlock()

	s.setStatus(model.DeviceStatusOnline)
	s.deviceLogger.LogConnection("connect", true, nil)
	return nil
}

// reconnect closes and reopens the link after a failure
func (s *LoadService) reconnect(ctx context.Context) error {
	s.mu.Lock()
	if err := s.link.Close(); err != nil {
		s.logger.Warn("Failed to close link before reconnect", zap.Error(err))
	}
	s.mu.Unlock()
	return s.connect(ctx)
}

// measurementLoop samples the measured values every measurement interval
func (s *LoadService) measurementLoop() {
	defer s.wg.Done()
	defer utils.LogPanic(s.logger.Logger)

	ticker := time.NewTicker(s.cfg.Device.MeasurementInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.Device().Status != model.DeviceStatusOnline {
				continue
			}

			var sample *pkgdriver.Measurement
			err := s.withDevice(context.Background(), func(ctx context.Context, load *korad.Load) (err error) {
				sample, err = load.Measure(ctx)
				return err
			})
			if err != nil {
				s.logger.Debug("Measurement failed", zap.Error(err))
				continue
			}
			for _, h := range s.eventHandlers() {
				h.OnMeasurement(sample)
			}
		}
	}
}

// healthLoop reconnects when the link is down and logs health metrics
func (s *LoadService) healthLoop() {
	defer s.wg.Done()
	defer utils.LogPanic(s.logger.Logger)

	ticker := time.NewTicker(s.cfg.Device.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.Device().Status != model.DeviceStatusOnline {
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Device.OperationTimeout)
				if err := s.reconnect(ctx); err != nil {
					s.logger.Warn("Reconnect failed", zap.Error(err))
				}
				cancel()
				continue
			}

			health := s.Health()
			var responseTime time.Duration
			if health.ResponseTime != nil {
				responseTime = time.Duration(*health.ResponseTime) * time.Millisecond
			}
			var errorRate float64
			if health.ErrorRate != nil {
				errorRate = *health.ErrorRate
			}
			s.deviceLogger.LogHealth(health.HealthScore, responseTime, errorRate)
		}
	}
}

// withDevice runs fn with exclusive access to the load and the operation
// timeout applied
func (s *LoadService) withDevice(ctx context.Context, fn func(ctx context.Context, load *korad.Load) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.link.IsOpen() {
		return fmt.Errorf("load %s: %w", s.cfg.Device.ID, protocol.ErrNotOpen)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.Device.OperationTimeout)
	defer cancel()

	start := time.Now()
	err := fn(opCtx, s.load)
	s.recordExchange(time.Since(start), err)
	return err
}

// do executes one user command, records it in the audit log and notifies
// the event handlers
func (s *LoadService) do(ctx context.Context, operation string, params model.JSONObject, fn func(ctx context.Context, load *korad.Load) error) error {
	record := &model.CommandRecord{
		ID:         uuid.New(),
		DeviceID:   s.cfg.Device.ID,
		Operation:  operation,
		Parameters: params,
		StartedAt:  time.Now(),
	}
	if requestID := utils.RequestIDFromContext(ctx); requestID != "" {
		record.RequestID = &requestID
	}

	opLogger := utils.NewOperationLogger(s.logger.Logger, operation, record.ID.String())
	opLogger.Start(zap.String("device_id", record.DeviceID))

	err := s.withDevice(ctx, fn)

	duration := time.Since(record.StartedAt)
	record.DurationMs = duration.Milliseconds()
	record.Status = CommandStatus(err)
	record.CreatedAt = time.Now()

	result := &pkgdriver.CommandResult{
		Operation: operation,
		Request:   params,
		Success:   record.IsSuccess(),
		Duration:  duration,
		Timestamp: record.CreatedAt,
	}

	if err != nil {
		_, code := utils.ClassifyError(err)
		message := err.Error()
		record.ErrorCode = &code
		record.ErrorMessage = &message
		result.ErrorCode = code
		result.ErrorMessage = message
		opLogger.Error(err, zap.String("error_code", code))
	} else {
		opLogger.Success()
	}

	s.saveRecord(ctx, record)

	for _, h := range s.eventHandlers() {
		h.OnCommandCompleted(result)
	}
	return err
}

// CommandStatus maps the outcome of a command to its audit status
func CommandStatus(err error) model.CommandStatus {
	if err == nil {
		return model.CommandStatusSuccess
	}
	switch _, code := utils.ClassifyError(err); code {
	case "VALIDATION_ERROR", "LIMIT_EXCEEDED", "MODE_ERROR":
		return model.CommandStatusRejected
	case "DEVICE_TIMEOUT":
		return model.CommandStatusTimeout
	default:
		return model.CommandStatusFailed
	}
}

// isLinkFailure reports transport errors. Rejected commands and replies the
// codec could not decode still prove the load is answering.
func isLinkFailure(err error) bool {
	switch _, code := utils.ClassifyError(err); code {
	case "VALIDATION_ERROR", "LIMIT_EXCEEDED", "MODE_ERROR", "DECODE_ERROR":
		return false
	}
	return true
}

func (s *LoadService) saveRecord(ctx context.Context, record *model.CommandRecord) {
	if s.commandRepo == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.commandRepo.Create(saveCtx, record); err != nil {
		utils.LogError(s.logger.Logger, "Failed to save command record", err,
			zap.String("operation", record.Operation),
		)
	}
}

func (s *LoadService) recordExchange(latency time.Duration, err error) {
	now := time.Now()
	linkFailure := err != nil && isLinkFailure(err)

	s.stateMu.Lock()
	s.counters.total++
	s.counters.totalLatency += latency
	if linkFailure {
		s.counters.errors++
		s.counters.lastErrorTime = &now
	} else {
		s.device.LastSeen = &now
	}
	s.stateMu.Unlock()

	if linkFailure {
		s.setStatus(model.DeviceStatusError)
		for _, h := range s.eventHandlers() {
			h.OnLinkError(err)
		}
	} else {
		s.setStatus(model.DeviceStatusOnline)
	}
}

func (s *LoadService) setStatus(status model.DeviceStatus) {
	s.stateMu.Lock()
	old := s.device.Status
	s.device.Status = status
	handlers := append([]pkgdriver.EventHandler(nil), s.handlers...)
	s.stateMu.Unlock()

	if old == status {
		return
	}
	s.logger.Info("Load status changed",
		zap.String("old_status", string(old)),
		zap.String("new_status", string(status)),
	)
	for _, h := range handlers {
		h.OnStatusChanged(string(old), string(status))
	}
}

func (s *LoadService) eventHandlers() []pkgdriver.EventHandler {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return append([]pkgdriver.EventHandler(nil), s.handlers...)
}
