// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/database"
	"eload-service/internal/handler"
	"eload-service/internal/middleware"
	"eload-service/internal/service"
	"eload-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config      *config.Config
	logger      *zap.Logger
	db          *database.DB
	loadService *service.LoadService
	wsHandler   *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil when the audit log
// is kept in memory.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	loadService *service.LoadService,
) *Router {
	return &Router{
		config:      config,
		logger:      logger,
		db:          db,
		loadService: loadService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	gin.SetMode(ginMode(r.config))

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// ginMode picks the gin mode. Production always runs in release mode.
func ginMode(cfg *config.Config) string {
	switch {
	case cfg.IsProduction():
		return gin.ReleaseMode
	case cfg.App.Environment == "test":
		return gin.TestMode
	case cfg.IsDebugEnabled():
		return gin.DebugMode
	default:
		return gin.ReleaseMode
	}
}

// Close releases the streaming connections held by the router
func (r *Router) Close() {
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.loadService, r.config, r.logger)
	loadHandler := handler.NewLoadHandler(r.loadService, r.logger)
	commandHandler := handler.NewCommandHandler(r.loadService, r.logger)
	r.wsHandler = handler.NewWebSocketHandler(r.loadService, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(router.Group(""))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	loadHandler.RegisterRoutes(apiV1)
	commandHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
