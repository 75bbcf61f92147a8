package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/domain/crashdump"
	"fleethub/internal/infrastructure/notifier"
	"fleethub/internal/interfaces/httpserver/responses"
)

// CoredumpHandler exposes the crash dump store endpoints.
type CoredumpHandler struct {
	cfg     *config.Config
	service *crashdump.Service
	events  *notifier.Notifier
	log     zerolog.Logger
}

func NewCoredumpHandler(cfg *config.Config, service *crashdump.Service, events *notifier.Notifier, log zerolog.Logger) *CoredumpHandler {
	return &CoredumpHandler{
		cfg:     cfg,
		service: service,
		events:  events,
		log:     log.With().Str("component", "coredump-handler").Logger(),
	}
}

type dumpUploadResponse struct {
	DumpID int64  `json:"dump_id"`
	Status string `json:"status"`
}

// Upload godoc
// @Summary      Upload a crash dump
// @Description  Accepts the raw dump bytes from a device, stores them and queues analysis. Device identity comes from the path key; chip and firmware version from headers.
// @Tags         coredumps
// @Accept       octet-stream
// @Produce      json
// @Param        id                path    string  true   "Device key"
// @Param        X-Chip            header  string  false  "Chip identifier"
// @Param        X-Firmware-Version header string  false  "Firmware version running at crash time"
// @Success      200  {object}  dumpUploadResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/devices/{id}/coredumps [post]
func (h *CoredumpHandler) Upload(c *gin.Context) {
	deviceKey := c.Param("id")
	chip := c.GetHeader("X-Chip")
	firmwareVersion := c.GetHeader("X-Firmware-Version")

	content, err := io.ReadAll(io.LimitReader(c.Request.Body, h.cfg.MaxDumpBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	dumpID, err := h.service.Save(c.Request.Context(), deviceKey, chip, firmwareVersion, content)
	if err != nil {
		h.log.Error().Err(err).Str("device", deviceKey).Msg("crash dump upload failed")
		responses.HandleError(c, err, "crash dump upload failed")
		return
	}

	h.events.DumpStored(c.Request.Context(), deviceKey, dumpID)
	c.JSON(http.StatusOK, dumpUploadResponse{DumpID: dumpID, Status: string(crashdump.StatusPending)})
}

// List godoc
// @Summary      List a device's crash dumps
// @Description  Returns the device's dumps newest first, including analysis status and output.
// @Tags         coredumps
// @Produce      json
// @Param        id  path  int  true  "Device id"
// @Success      200  {array}   crashdump.Dump
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/devices/{id}/coredumps [get]
func (h *CoredumpHandler) List(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	dumps, err := h.service.List(c.Request.Context(), deviceID)
	if err != nil {
		responses.HandleError(c, err, "failed to list crash dumps")
		return
	}
	c.JSON(http.StatusOK, dumps)
}

// Download godoc
// @Summary      Download a crash dump
// @Tags         coredumps
// @Produce      octet-stream
// @Param        id      path  int  true  "Device id"
// @Param        dumpID  path  int  true  "Dump id"
// @Success      200  "binary data"
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/devices/{id}/coredumps/{dumpID} [get]
func (h *CoredumpHandler) Download(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	dumpID, ok := pathID(c, "dumpID")
	if !ok {
		return
	}

	reader, contentType, err := h.service.GetStream(c.Request.Context(), deviceID, dumpID)
	if err != nil {
		responses.HandleError(c, err, "crash dump not available")
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.log.Error().Err(err).Int64("dump_id", dumpID).Msg("stream error")
	}
}

// Delete godoc
// @Summary      Delete one crash dump
// @Tags         coredumps
// @Param        id      path  int  true  "Device id"
// @Param        dumpID  path  int  true  "Dump id"
// @Success      204  "no content"
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/devices/{id}/coredumps/{dumpID} [delete]
func (h *CoredumpHandler) Delete(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	dumpID, ok := pathID(c, "dumpID")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), deviceID, dumpID); err != nil {
		responses.HandleError(c, err, "crash dump delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAll godoc
// @Summary      Delete all crash dumps of a device
// @Tags         coredumps
// @Param        id  path  int  true  "Device id"
// @Success      204  "no content"
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/devices/{id}/coredumps [delete]
func (h *CoredumpHandler) DeleteAll(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAll(c.Request.Context(), deviceID); err != nil {
		responses.HandleError(c, err, "crash dump delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
