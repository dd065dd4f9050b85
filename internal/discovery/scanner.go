// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"eload-service/internal/driver/korad"
	"eload-service/internal/model"
	"eload-service/pkg/driver"
)

// Scanner looks for electronic loads on one kind of connection
type Scanner interface {
	Scan(ctx context.Context) ([]*DiscoveredLoad, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredLoad is a load that answered *IDN? during a scan
type DiscoveredLoad struct {
	ConnectionType model.ConnectionType `json:"connection_type" yaml:"connection_type"`
	Address        string               `json:"address" yaml:"address"`
	Identity       string               `json:"identity" yaml:"identity"`
	Model          string               `json:"model" yaml:"model"`
}

// LinkDialer creates an unopened link to address
type LinkDialer func(address string) (driver.Link, error)

// Probe opens link, reads the identity string and closes the link again
func Probe(ctx context.Context, link driver.Link) (string, error) {
	if err := link.Open(ctx); err != nil {
		return "", fmt.Errorf("failed to open link: %w", err)
	}
	defer link.Close()

	identity, err := korad.NewLoad(link, nil).Identity(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to identify load: %w", err)
	}
	return identity, nil
}

// ModelFromIdentity extracts the KEL model from an identity string such as
// "KORAD-KEL103 V3.30 SN:12345678". It returns "" for other instruments.
func ModelFromIdentity(identity string) string {
	for _, field := range strings.Fields(strings.ToUpper(identity)) {
		if i := strings.Index(field, "KEL10"); i >= 0 {
			return strings.TrimRight(field[i:], ",;")
		}
	}
	return ""
}

// ProbeAddresses dials and probes each address in turn and returns the ones
// that answered as a KEL load
func ProbeAddresses(ctx context.Context, connType model.ConnectionType, addresses []string, dial LinkDialer, logger *zap.Logger) ([]*DiscoveredLoad, error) {
	var found []*DiscoveredLoad
	for _, address := range addresses {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		link, err := dial(address)
		if err != nil {
			logger.Debug("Cannot dial address", zap.String("address", address), zap.Error(err))
			continue
		}

		identity, err := Probe(ctx, link)
		if err != nil {
			logger.Debug("No load answered", zap.String("address", address), zap.Error(err))
			continue
		}

		loadModel := ModelFromIdentity(identity)
		if loadModel == "" {
			logger.Info("Ignoring non KEL instrument",
				zap.String("address", address),
				zap.String("identity", identity),
			)
			continue
		}

		found = append(found, &DiscoveredLoad{
			ConnectionType: connType,
			Address:        address,
			Identity:       identity,
			Model:          loadModel,
		})
	}
	return found, nil
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]Scanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]Scanner),
		logger:   logger,
	}
}

// RegisterScanner registers a scanner under its type
func (sm *ScannerManager) RegisterScanner(scanner Scanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Debug("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredLoad, error) {
	var all []*DiscoveredLoad

	for _, scannerType := range sm.scannerTypes() {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		loads, err := scanner.Scan(ctx)
		all = append(all, loads...)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("loads_found", len(loads)),
		)
	}

	return all, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredLoad, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// GetAvailableScanners returns the types of the available scanners
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for _, scannerType := range sm.scannerTypes() {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) scannerTypes() []string {
	types := make([]string, 0, len(sm.scanners))
	for t := range sm.scanners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
