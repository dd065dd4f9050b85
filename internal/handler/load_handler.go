// internal/handler/load_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"eload-service/internal/service"
	"eload-service/internal/utils"
	"eload-service/pkg/kel"
)

// LoadHandler exposes the electronic load over HTTP
type LoadHandler struct {
	loadService *service.LoadService
	logger      *utils.ServiceLogger
}

// NewLoadHandler creates a new load handler
func NewLoadHandler(loadService *service.LoadService, logger *zap.Logger) *LoadHandler {
	return &LoadHandler{
		loadService: loadService,
		logger:      utils.NewServiceLogger(logger, "load-handler"),
	}
}

// RegisterRoutes registers load routes
func (h *LoadHandler) RegisterRoutes(router *gin.RouterGroup) {
	load := router.Group("/load")
	{
		load.GET("", h.GetLoad)
		load.GET("/identity", h.GetIdentity)
		load.GET("/status", h.GetStatus)
		load.GET("/device-info", h.GetDeviceInfo)
		load.GET("/link", h.GetLinkStats)

		load.GET("/function", h.GetFunction)
		load.PUT("/function", h.SetFunction)

		load.GET("/setpoints/:quantity", h.GetSetpoint)
		load.PUT("/setpoints/:quantity", h.SetSetpoint)
		load.GET("/limits/:quantity", h.GetLimit)
		load.PUT("/limits/:quantity", h.SetLimit)

		load.GET("/measurements", h.GetMeasurements)
		load.POST("/trigger", h.Trigger)

		load.GET("/toggles/:name", h.GetToggle)
		load.PUT("/toggles/:name", h.SetToggle)

		load.POST("/memories/:number/save", h.SaveMemory)
		load.POST("/memories/:number/recall", h.RecallMemory)

		programs := load.Group("/programs")
		{
			programs.GET("/list/:slot", h.GetList)
			programs.PUT("/list/:slot", h.SetList)
			programs.GET("/ocp/:slot", h.GetOCP)
			programs.PUT("/ocp/:slot", h.SetOCP)
			programs.GET("/opp/:slot", h.GetOPP)
			programs.PUT("/opp/:slot", h.SetOPP)
			programs.GET("/battery/:slot", h.GetBattery)
			programs.PUT("/battery/:slot", h.SetBattery)
		}

		load.GET("/battery/progress", h.GetBatteryProgress)
		load.GET("/dynamic", h.GetDynamic)
		load.PUT("/dynamic", h.SetDynamic)

		load.GET("/network", h.GetNetwork)
		load.PUT("/network", h.UpdateNetwork)
		load.POST("/factory-reset", h.FactoryReset)
	}
}

// ValueRequest carries a scalar for setpoints and limits
type ValueRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// FunctionRequest selects the load mode
type FunctionRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// ToggleRequest carries an on/off state, either on/off or 1/0
type ToggleRequest struct {
	State string `json:"state" binding:"required"`
}

// DynamicRequest carries a dynamic program. Tag selects the variant
// (1 CV, 2 CC, 3 CR, 4 CW, 5 pulse, 6 toggle) and List holds its fields.
type DynamicRequest struct {
	Tag  int             `json:"tag" binding:"required"`
	List json.RawMessage `json:"list" binding:"required"`
}

// DynamicResponse describes the active dynamic program
type DynamicResponse struct {
	Tag  int             `json:"tag"`
	Mode kel.Mode        `json:"mode"`
	List kel.DynamicList `json:"list"`
}

// GetLoad returns the load description and link health
// @Summary Load description
// @Tags Load
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /load [get]
func (h *LoadHandler) GetLoad(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Load retrieved successfully", gin.H{
		"device": h.loadService.Device(),
		"health": h.loadService.Health(),
	})
}

// GetIdentity returns the *IDN? string
// @Summary Identity string
// @Tags Load
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Failure 500 {object} utils.APIResponse
// @Router /load/identity [get]
func (h *LoadHandler) GetIdentity(c *gin.Context) {
	identity, err := h.loadService.Identity(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read identity", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Identity retrieved successfully", gin.H{"identity": identity})
}

// GetStatus returns the decoded status line
// @Summary Status line
// @Tags Load
// @Produce json
// @Success 200 {object} utils.APIResponse{data=kel.Status}
// @Router /load/status [get]
func (h *LoadHandler) GetStatus(c *gin.Context) {
	status, err := h.loadService.Status(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read status", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", status)
}

// GetDeviceInfo returns the network and serial configuration block
func (h *LoadHandler) GetDeviceInfo(c *gin.Context) {
	info, err := h.loadService.DeviceInfo(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read device info", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device info retrieved successfully", info)
}

// GetLinkStats returns the link counters
func (h *LoadHandler) GetLinkStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Link statistics retrieved successfully", h.loadService.LinkStats())
}

// GetFunction returns the active mode
func (h *LoadHandler) GetFunction(c *gin.Context) {
	mode, err := h.loadService.Function(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read function", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Function retrieved successfully", gin.H{
		"mode":    mode,
		"dynamic": mode.Dynamic(),
	})
}

// SetFunction switches the load mode
// @Summary Set function
// @Tags Load
// @Accept json
// @Produce json
// @Param request body FunctionRequest true "Mode, one of CV, CC, CR, CW, SHORt"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse "Mode cannot be selected directly"
// @Router /load/function [put]
func (h *LoadHandler) SetFunction(c *gin.Context) {
	var req FunctionRequest
	if !bindJSON(c, &req) {
		return
	}
	mode, err := kel.ParseMode(req.Mode)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid mode", err)
		return
	}

	if err := h.loadService.SetFunction(utils.RequestContext(c), mode); err != nil {
		h.deviceError(c, "Failed to set function", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Function set successfully", gin.H{"mode": mode})
}

// GetSetpoint returns the programmed value of a quantity
func (h *LoadHandler) GetSetpoint(c *gin.Context) {
	q, ok := h.quantity(c)
	if !ok {
		return
	}
	value, err := h.loadService.Setpoint(utils.RequestContext(c), q)
	if err != nil {
		h.deviceError(c, "Failed to read setpoint", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setpoint retrieved successfully", gin.H{"quantity": q, "value": value})
}

// SetSetpoint programs a quantity
// @Summary Set setpoint
// @Description The value is checked against the live upper limit before it is sent
// @Tags Load
// @Accept json
// @Produce json
// @Param quantity path string true "Quantity" Enums(current, voltage, resistance, power)
// @Param request body ValueRequest true "Value"
// @Success 200 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse "Value above the limit"
// @Router /load/setpoints/{quantity} [put]
func (h *LoadHandler) SetSetpoint(c *gin.Context) {
	q, ok := h.quantity(c)
	if !ok {
		return
	}
	var req ValueRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.loadService.SetSetpoint(utils.RequestContext(c), q, *req.Value); err != nil {
		h.deviceError(c, "Failed to set setpoint", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setpoint set successfully", gin.H{"quantity": q, "value": *req.Value})
}

// GetLimit returns the upper limit of a quantity
func (h *LoadHandler) GetLimit(c *gin.Context) {
	q, ok := h.quantity(c)
	if !ok {
		return
	}
	limit, err := h.loadService.Limit(utils.RequestContext(c), q)
	if err != nil {
		h.deviceError(c, "Failed to read limit", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Limit retrieved successfully", gin.H{"quantity": q, "value": limit})
}

// SetLimit changes the upper limit of a quantity
func (h *LoadHandler) SetLimit(c *gin.Context) {
	q, ok := h.quantity(c)
	if !ok {
		return
	}
	var req ValueRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.loadService.SetLimit(utils.RequestContext(c), q, *req.Value); err != nil {
		h.deviceError(c, "Failed to set limit", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Limit set successfully", gin.H{"quantity": q, "value": *req.Value})
}

// GetMeasurements reads current, voltage and power
func (h *LoadHandler) GetMeasurements(c *gin.Context) {
	sample, err := h.loadService.Measure(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read measurements", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Measurements retrieved successfully", sample)
}

// Trigger fires a bus trigger
func (h *LoadHandler) Trigger(c *gin.Context) {
	if err := h.loadService.Trigger(utils.RequestContext(c)); err != nil {
		h.deviceError(c, "Failed to trigger", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Trigger sent", nil)
}

// GetToggle reads an on/off setting
func (h *LoadHandler) GetToggle(c *gin.Context) {
	name := c.Param("name")
	state, err := h.loadService.Toggle(utils.RequestContext(c), name)
	if err != nil {
		h.deviceError(c, "Failed to read setting", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setting retrieved successfully", gin.H{"name": name, "state": state.String()})
}

// SetToggle switches an on/off setting
// @Summary Switch a setting
// @Tags Load
// @Accept json
// @Produce json
// @Param name path string true "Setting" Enums(input, beep, lock, dhcp, trigger, compensation)
// @Param request body ToggleRequest true "State"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse "Unknown setting"
// @Router /load/toggles/{name} [put]
func (h *LoadHandler) SetToggle(c *gin.Context) {
	name := c.Param("name")
	var req ToggleRequest
	if !bindJSON(c, &req) {
		return
	}
	state, err := kel.ParseOnOffState(req.State)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid state", err)
		return
	}

	if err := h.loadService.SetToggle(utils.RequestContext(c), name, state); err != nil {
		h.deviceError(c, "Failed to change setting", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setting changed successfully", gin.H{"name": name, "state": state.String()})
}

// SaveMemory stores the current settings in a front panel memory
func (h *LoadHandler) SaveMemory(c *gin.Context) {
	number, ok := h.intParam(c, "number")
	if !ok {
		return
	}
	if err := h.loadService.SaveMemory(utils.RequestContext(c), number); err != nil {
		h.deviceError(c, "Failed to save memory", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Memory saved", gin.H{"memory": number})
}

// RecallMemory loads a front panel memory
func (h *LoadHandler) RecallMemory(c *gin.Context) {
	number, ok := h.intParam(c, "number")
	if !ok {
		return
	}
	if err := h.loadService.RecallMemory(utils.RequestContext(c), number); err != nil {
		h.deviceError(c, "Failed to recall memory", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Memory recalled", gin.H{"memory": number})
}

// GetList recalls and reads a step program
func (h *LoadHandler) GetList(c *gin.Context) {
	slot, ok := h.intParam(c, "slot")
	if !ok {
		return
	}
	list, err := h.loadService.GetList(utils.RequestContext(c), slot)
	if err != nil {
		h.deviceError(c, "Failed to read list", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "List retrieved successfully", list)
}

// SetList uploads a step program
// @Summary Upload a step program
// @Tags Programs
// @Accept json
// @Produce json
// @Param slot path int true "Slot 1-7"
// @Param recall query bool false "Recall the slot after upload" default(true)
// @Param request body kel.LoadList true "Program"
// @Success 200 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse "Invalid program"
// @Router /load/programs/list/{slot} [put]
func (h *LoadHandler) SetList(c *gin.Context) {
	var list kel.LoadList
	slot, recall, ok := h.bindProgram(c, &list)
	if !ok {
		return
	}
	list.Slot = slot

	if err := h.loadService.SetList(utils.RequestContext(c), &list, recall); err != nil {
		h.deviceError(c, "Failed to upload list", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "List uploaded successfully", &list)
}

// GetOCP recalls and reads an over-current test program
func (h *LoadHandler) GetOCP(c *gin.Context) {
	slot, ok := h.intParam(c, "slot")
	if !ok {
		return
	}
	list, err := h.loadService.GetOCP(utils.RequestContext(c), slot)
	if err != nil {
		h.deviceError(c, "Failed to read OCP program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "OCP program retrieved successfully", list)
}

// SetOCP uploads an over-current test program
func (h *LoadHandler) SetOCP(c *gin.Context) {
	var list kel.OCPList
	slot, recall, ok := h.bindProgram(c, &list)
	if !ok {
		return
	}
	list.Slot = slot

	if err := h.loadService.SetOCP(utils.RequestContext(c), &list, recall); err != nil {
		h.deviceError(c, "Failed to upload OCP program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "OCP program uploaded successfully", &list)
}

// GetOPP recalls and reads an over-power test program
func (h *LoadHandler) GetOPP(c *gin.Context) {
	slot, ok := h.intParam(c, "slot")
	if !ok {
		return
	}
	list, err := h.loadService.GetOPP(utils.RequestContext(c), slot)
	if err != nil {
		h.deviceError(c, "Failed to read OPP program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "OPP program retrieved successfully", list)
}

// SetOPP uploads an over-power test program
func (h *LoadHandler) SetOPP(c *gin.Context) {
	var list kel.OPPList
	slot, recall, ok := h.bindProgram(c, &list)
	if !ok {
		return
	}
	list.Slot = slot

	if err := h.loadService.SetOPP(utils.RequestContext(c), &list, recall); err != nil {
		h.deviceError(c, "Failed to upload OPP program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "OPP program uploaded successfully", &list)
}

// GetBattery recalls and reads a battery test program
func (h *LoadHandler) GetBattery(c *gin.Context) {
	slot, ok := h.intParam(c, "slot")
	if !ok {
		return
	}
	list, err := h.loadService.GetBattery(utils.RequestContext(c), slot)
	if err != nil {
		h.deviceError(c, "Failed to read battery program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Battery program retrieved successfully", list)
}

// SetBattery uploads a battery test program
func (h *LoadHandler) SetBattery(c *gin.Context) {
	var list kel.BatteryList
	slot, recall, ok := h.bindProgram(c, &list)
	if !ok {
		return
	}
	list.Slot = slot

	if err := h.loadService.SetBattery(utils.RequestContext(c), &list, recall); err != nil {
		h.deviceError(c, "Failed to upload battery program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Battery program uploaded successfully", &list)
}

// GetBatteryProgress reads elapsed time and discharged capacity
func (h *LoadHandler) GetBatteryProgress(c *gin.Context) {
	progress, err := h.loadService.BatteryProgress(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read battery progress", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Battery progress retrieved successfully", progress)
}

// GetDynamic reads the active dynamic program
func (h *LoadHandler) GetDynamic(c *gin.Context) {
	list, err := h.loadService.DynamicList(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read dynamic program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Dynamic program retrieved successfully", &DynamicResponse{
		Tag:  list.Tag(),
		Mode: list.Mode(),
		List: list,
	})
}

// SetDynamic uploads a dynamic program
// @Summary Upload a dynamic program
// @Tags Programs
// @Accept json
// @Produce json
// @Param recall query bool false "Query the program after upload" default(true)
// @Param request body DynamicRequest true "Program"
// @Success 200 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse "Levels above the limit or invalid duty cycle"
// @Router /load/dynamic [put]
func (h *LoadHandler) SetDynamic(c *gin.Context) {
	var req DynamicRequest
	if !bindJSON(c, &req) {
		return
	}
	recall, ok := h.recall(c)
	if !ok {
		return
	}
	list, err := decodeDynamicList(req.Tag, req.List)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid dynamic program", err)
		return
	}

	if err := h.loadService.SetDynamicList(utils.RequestContext(c), list, recall); err != nil {
		h.deviceError(c, "Failed to upload dynamic program", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Dynamic program uploaded successfully", &DynamicResponse{
		Tag:  list.Tag(),
		Mode: list.Mode(),
		List: list,
	})
}

// GetNetwork reads the network and serial settings
func (h *LoadHandler) GetNetwork(c *gin.Context) {
	settings, err := h.loadService.NetworkSettings(utils.RequestContext(c))
	if err != nil {
		h.deviceError(c, "Failed to read network settings", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Network settings retrieved successfully", settings)
}

// UpdateNetwork changes the network and serial settings present in the body
func (h *LoadHandler) UpdateNetwork(c *gin.Context) {
	var req service.NetworkUpdate
	if !bindJSON(c, &req) {
		return
	}

	if err := h.loadService.UpdateNetwork(utils.RequestContext(c), &req); err != nil {
		h.deviceError(c, "Failed to update network settings", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Network settings updated successfully", &req)
}

// FactoryReset restores the factory defaults
func (h *LoadHandler) FactoryReset(c *gin.Context) {
	if err := h.loadService.FactoryReset(utils.RequestContext(c)); err != nil {
		h.deviceError(c, "Failed to reset load", err)
		return
	}
	h.logger.Warn("Load reset to factory defaults", zap.String("client_ip", c.ClientIP()))
	utils.SuccessResponse(c, http.StatusOK, "Load reset to factory defaults", nil)
}

// Helper methods

func (h *LoadHandler) deviceError(c *gin.Context, message string, err error) {
	if errors.Is(err, service.ErrUnknownSetting) {
		utils.ErrorResponse(c, http.StatusNotFound, message, err)
		return
	}
	h.logger.Warn(message, zap.Error(err), zap.String("path", c.Request.URL.Path))
	utils.DeviceErrorResponse(c, message, err)
}

var quantities = map[string]kel.Quantity{
	string(kel.QuantityCurrent):    kel.QuantityCurrent,
	string(kel.QuantityVoltage):    kel.QuantityVoltage,
	string(kel.QuantityResistance): kel.QuantityResistance,
	string(kel.QuantityPower):      kel.QuantityPower,
}

func (h *LoadHandler) quantity(c *gin.Context) (kel.Quantity, bool) {
	q, ok := quantities[c.Param("quantity")]
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown quantity",
			fmt.Errorf("quantity must be one of current, voltage, resistance, power"))
		return "", false
	}
	return q, true
}

func (h *LoadHandler) intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return n, true
}

func (h *LoadHandler) recall(c *gin.Context) (bool, bool) {
	recall, err := strconv.ParseBool(c.DefaultQuery("recall", "true"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid recall flag", err)
		return false, false
	}
	return recall, true
}

// bindProgram reads the slot, the recall flag and the body of a program upload
func (h *LoadHandler) bindProgram(c *gin.Context, body interface{}) (int, bool, bool) {
	slot, ok := h.intParam(c, "slot")
	if !ok {
		return 0, false, false
	}
	recall, ok := h.recall(c)
	if !ok {
		return 0, false, false
	}
	if !bindJSON(c, body) {
		return 0, false, false
	}
	return slot, recall, true
}

// bindJSON decodes the request body. Failed binding rules are reported per
// JSON field.
func bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		utils.ValidationErrorResponse(c, fields)
		return false
	}

	utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
	return false
}

// decodeDynamicList decodes the fields of the variant selected by tag
func decodeDynamicList(tag int, raw json.RawMessage) (kel.DynamicList, error) {
	list, err := kel.NewDynamicList(tag)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, list); err != nil {
		return nil, fmt.Errorf("failed to decode dynamic program: %w", err)
	}
	return list, nil
}
