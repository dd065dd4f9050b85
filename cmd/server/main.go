// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/database"
	"eload-service/internal/driver"
	"eload-service/internal/protocol"
	"eload-service/internal/repository"
	"eload-service/internal/routes"
	"eload-service/internal/service"
	"eload-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	router   *routes.Router
	database *database.DB

	link        *protocol.LineChannel
	loadService *service.LoadService
	commandRepo repository.CommandRepository

	driverRegistry *driver.Registry

	stopCh chan struct{}
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	migrateAction := pflag.String("migrate", "", "run a migration action (up, down, version, force) and exit")
	forceVersion := pflag.Int("force-version", -1, "version recorded by --migrate force")
	pflag.Parse()

	if *migrateAction != "" {
		if err := runMigration(*configPath, *migrateAction, *forceVersion); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "eload-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()
	app.initializeDriverRegistry()

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeDatabase sets up database connection and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, command audit log kept in memory",
			zap.Int("capacity", app.config.Database.MemoryCapacity),
		)
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	if app.database != nil {
		app.commandRepo = repository.NewCommandRepository(app.database, app.logger)
	} else {
		app.commandRepo = repository.NewMemoryCommandRepository(app.config.Database.MemoryCapacity)
	}

	app.logger.Info("Repositories initialized successfully")
}

// initializeDriverRegistry sets up the load driver registry
func (app *Application) initializeDriverRegistry() {
	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	app.logger.Info("Driver registry initialized successfully",
		zap.Strings("models", app.driverRegistry.ListModels()),
	)
}

// initializeServices creates the link and the load service
func (app *Application) initializeServices() error {
	proto, err := protocol.CreateProtocol(&app.config.Device, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create protocol: %w", err)
	}
	app.link = protocol.NewLineChannel(proto, app.logger)

	app.loadService, err = service.NewLoadService(
		app.config,
		app.link,
		app.driverRegistry,
		app.commandRepo,
		app.logger,
	)
	if err != nil {
		return err
	}

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.loadService,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// startBackgroundServices connects the load and starts the cleanup loop
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The service keeps retrying through its health loop when the load is
	// not reachable yet.
	if err := app.loadService.Start(ctx); err != nil {
		app.logger.Warn("Load not reachable at startup",
			zap.String("address", app.config.GetDeviceAddr()),
			zap.Error(err),
		)
	}

	go app.startCleanupService()

	app.logger.Info("Background services started")
}

// startCleanupService prunes audit records past the retention period
func (app *Application) startCleanupService() {
	defer utils.LogPanic(app.logger)

	if app.config.Database.Retention <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("retention", app.config.Database.Retention),
	)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			deleted, err := app.commandRepo.DeleteOlderThan(ctx, time.Now().Add(-app.config.Database.Retention))
			cancel()

			if err != nil {
				utils.LogError(app.logger, "Failed to cleanup old command records", err)
			} else if deleted > 0 {
				app.logger.Info("Cleaned up old command records", zap.Int64("deleted", deleted))
			}
		case <-app.stopCh:
			return
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "eload-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	close(app.stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.router.Close()
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.loadService.Stop(); err != nil {
		utils.LogError(app.logger, "Load service stop error", err)
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		defer utils.LogPanic(app.logger)

		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()
	app.waitForShutdown()

	return nil
}
