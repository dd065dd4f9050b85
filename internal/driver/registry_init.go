// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"eload-service/internal/driver/korad"
)

// koradModels share one command set and differ only in rating
var koradModels = []string{"KEL103", "KEL102"}

// RegisterDefaultDrivers registers all default load drivers
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	registerKoradDrivers(registry, logger)
}

// registerKoradDrivers registers the Korad KEL10x family
func registerKoradDrivers(registry *Registry, logger *zap.Logger) {
	for _, model := range koradModels {
		registry.Register(model, korad.NewLoad)
	}

	// Rebadged units answer *IDN? with other names but speak the same protocol
	registry.Register(WildcardModel, korad.NewLoad)

	logger.Info("Korad load drivers registered",
		zap.Int("models", len(koradModels)+1),
	)
}
