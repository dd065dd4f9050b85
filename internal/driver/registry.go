// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"eload-service/internal/driver/korad"
	"eload-service/internal/utils"
	"eload-service/pkg/driver"
)

// WildcardModel matches any model without an exact registration
const WildcardModel = "*"

// LoadFactory creates a command facade over an open transport
type LoadFactory func(transport driver.Transport, logger *utils.DeviceLogger) *korad.Load

// Registry maps load models to facade factories
type Registry struct {
	drivers map[string]LoadFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[string]LoadFactory),
		logger:  logger,
	}
}

// Register registers a factory for a model
func (r *Registry) Register(model string, factory LoadFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[normalizeModel(model)] = factory
	r.logger.Info("Driver registered", zap.String("model", model))
}

// CreateLoad creates a facade for the given model
func (r *Registry) CreateLoad(model string, transport driver.Transport, logger *utils.DeviceLogger) (*korad.Load, error) {
	factory, ok := r.lookup(model)
	if !ok {
		return nil, fmt.Errorf("no driver found for model=%s", model)
	}
	return factory(transport, logger), nil
}

// IsSupported checks if a model has a driver, directly or through the wildcard
func (r *Registry) IsSupported(model string) bool {
	_, ok := r.lookup(model)
	return ok
}

// ListModels returns the registered models in sorted order
func (r *Registry) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.drivers))
	for model := range r.drivers {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func (r *Registry) lookup(model string) (LoadFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if factory, exists := r.drivers[normalizeModel(model)]; exists {
		return factory, true
	}
	factory, exists := r.drivers[WildcardModel]
	return factory, exists
}

func normalizeModel(model string) string {
	return strings.ToUpper(strings.TrimSpace(model))
}
