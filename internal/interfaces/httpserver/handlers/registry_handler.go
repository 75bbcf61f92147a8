package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleethub/internal/infrastructure/repository/registry"
	"fleethub/internal/interfaces/httpserver/responses"
)

// RegistryHandler exposes the device and model registry glue.
type RegistryHandler struct {
	repo *registry.Repository
	log  zerolog.Logger
}

func NewRegistryHandler(repo *registry.Repository, log zerolog.Logger) *RegistryHandler {
	return &RegistryHandler{
		repo: repo,
		log:  log.With().Str("component", "registry-handler").Logger(),
	}
}

type createModelRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

type createDeviceRequest struct {
	DeviceKey string `json:"device_key" binding:"required"`
	ModelCode string `json:"model_code" binding:"required"`
	Chip      string `json:"chip"`
}

// ListModels godoc
// @Summary  List registered models
// @Tags     registry
// @Produce  json
// @Success  200  {array}  registry.Model
// @Router   /v1/models [get]
func (h *RegistryHandler) ListModels(c *gin.Context) {
	models, err := h.repo.ListModels(c.Request.Context())
	if err != nil {
		responses.HandleError(c, err, "failed to list models")
		return
	}
	c.JSON(http.StatusOK, models)
}

// CreateModel godoc
// @Summary  Register a model
// @Tags     registry
// @Accept   json
// @Produce  json
// @Param    request  body      createModelRequest  true  "Model"
// @Success  201      {object}  registry.Model
// @Failure  400      {object}  responses.ErrorResponse
// @Failure  409      {object}  responses.ErrorResponse
// @Router   /v1/models [post]
func (h *RegistryHandler) CreateModel(c *gin.Context) {
	var req createModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	model, err := h.repo.CreateModel(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		responses.HandleError(c, err, "failed to create model")
		return
	}
	c.JSON(http.StatusCreated, model)
}

// ListDevices godoc
// @Summary  List registered devices
// @Tags     registry
// @Produce  json
// @Success  200  {array}  registry.Device
// @Router   /v1/devices [get]
func (h *RegistryHandler) ListDevices(c *gin.Context) {
	devices, err := h.repo.ListDevices(c.Request.Context())
	if err != nil {
		responses.HandleError(c, err, "failed to list devices")
		return
	}
	c.JSON(http.StatusOK, devices)
}

// CreateDevice godoc
// @Summary  Register a device
// @Tags     registry
// @Accept   json
// @Produce  json
// @Param    request  body      createDeviceRequest  true  "Device"
// @Success  201      {object}  registry.Device
// @Failure  400      {object}  responses.ErrorResponse
// @Failure  404      {object}  responses.ErrorResponse
// @Router   /v1/devices [post]
func (h *RegistryHandler) CreateDevice(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	device, err := h.repo.CreateDevice(c.Request.Context(), req.DeviceKey, req.ModelCode, req.Chip)
	if err != nil {
		responses.HandleError(c, err, "failed to create device")
		return
	}
	c.JSON(http.StatusCreated, device)
}

// GetDevice godoc
// @Summary  Get one device
// @Tags     registry
// @Produce  json
// @Param    id  path  int  true  "Device id"
// @Success  200  {object}  registry.Device
// @Failure  404  {object}  responses.ErrorResponse
// @Router   /v1/devices/{id} [get]
func (h *RegistryHandler) GetDevice(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	device, err := h.repo.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		responses.HandleError(c, err, "failed to load device")
		return
	}
	c.JSON(http.StatusOK, device)
}

// DeleteDevice godoc
// @Summary  Delete a device
// @Tags     registry
// @Param    id  path  int  true  "Device id"
// @Success  204  "no content"
// @Failure  404  {object}  responses.ErrorResponse
// @Router   /v1/devices/{id} [delete]
func (h *RegistryHandler) DeleteDevice(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.repo.DeleteDevice(c.Request.Context(), deviceID); err != nil {
		responses.HandleError(c, err, "failed to delete device")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetConfig godoc
// @Summary  Get device configuration
// @Tags     registry
// @Produce  json
// @Param    id  path  int  true  "Device id"
// @Success  200  {object}  map[string]interface{}
// @Failure  404  {object}  responses.ErrorResponse
// @Router   /v1/devices/{id}/config [get]
func (h *RegistryHandler) GetConfig(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	cfg, err := h.repo.DeviceConfig(c.Request.Context(), deviceID)
	if err != nil {
		responses.HandleError(c, err, "failed to load device config")
		return
	}
	c.Data(http.StatusOK, "application/json", cfg)
}

// SetConfig godoc
// @Summary  Replace device configuration
// @Tags     registry
// @Accept   json
// @Param    id      path  int                     true  "Device id"
// @Param    config  body  map[string]interface{}  true  "Configuration document"
// @Success  204  "no content"
// @Failure  400  {object}  responses.ErrorResponse
// @Failure  404  {object}  responses.ErrorResponse
// @Router   /v1/devices/{id}/config [put]
func (h *RegistryHandler) SetConfig(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var doc json.RawMessage
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "config must be valid JSON"})
		return
	}
	if err := h.repo.SetDeviceConfig(c.Request.Context(), deviceID, doc); err != nil {
		responses.HandleError(c, err, "failed to update device config")
		return
	}
	c.Status(http.StatusNoContent)
}
