// internal/handler/command_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"eload-service/internal/model"
	"eload-service/internal/repository"
	"eload-service/internal/service"
	"eload-service/internal/utils"
)

// CommandHandler serves the command audit log
type CommandHandler struct {
	loadService *service.LoadService
	logger      *utils.ServiceLogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(loadService *service.LoadService, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		loadService: loadService,
		logger:      utils.NewServiceLogger(logger, "command-handler"),
	}
}

// RegisterRoutes registers audit log routes
func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	commands := router.Group("/commands")
	{
		commands.GET("", h.ListCommands)
		commands.GET("/stats", h.GetStats)
		commands.GET("/:id", h.GetCommand)
	}
}

// GetCommand retrieves one audit record
// @Summary Get command record
// @Tags Commands
// @Produce json
// @Param id path string true "Command ID"
// @Success 200 {object} utils.APIResponse{data=model.CommandRecord}
// @Failure 400 {object} utils.APIResponse "Invalid command ID"
// @Failure 404 {object} utils.APIResponse "Command not found"
// @Router /commands/{id} [get]
func (h *CommandHandler) GetCommand(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command ID", err)
		return
	}

	record, err := h.loadService.Command(c.Request.Context(), id)
	if err != nil {
		h.auditError(c, "Failed to get command", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Command retrieved successfully", record)
}

// ListCommands lists audit records, newest first
// @Summary List command records
// @Tags Commands
// @Produce json
// @Param operation query string false "Filter by operation"
// @Param status query string false "Filter by status" Enums(SUCCESS, REJECTED, FAILED, TIMEOUT)
// @Param since query string false "Only records after this time (RFC3339)"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Records to skip" default(0)
// @Success 200 {object} utils.APIResponse
// @Failure 503 {object} utils.APIResponse "Audit log disabled"
// @Router /commands [get]
func (h *CommandHandler) ListCommands(c *gin.Context) {
	filter := &model.CommandFilter{}

	filter.Operation = c.Query("operation")
	filter.Status = model.CommandStatus(c.Query("status"))
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid since parameter", err)
			return
		}
		filter.Since = &t
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	records, total, err := h.loadService.Commands(c.Request.Context(), filter)
	if err != nil {
		h.auditError(c, "Failed to list commands", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Commands retrieved successfully", gin.H{
		"commands": records,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// GetStats summarizes the audit log
func (h *CommandHandler) GetStats(c *gin.Context) {
	var since *time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid since parameter", err)
			return
		}
		since = &t
	}

	stats, err := h.loadService.CommandStats(c.Request.Context(), since)
	if err != nil {
		h.auditError(c, "Failed to get command stats", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Command statistics retrieved successfully", stats)
}

func (h *CommandHandler) auditError(c *gin.Context, message string, err error) {
	var notFound *repository.NotFoundError
	switch {
	case errors.As(err, &notFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Command not found", err)
	case errors.Is(err, service.ErrAuditDisabled):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
	default:
		h.logger.Error(message, zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
	}
}
