package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/domain/firmware"
	"fleethub/internal/infrastructure/notifier"
	"fleethub/internal/interfaces/httpserver/responses"
)

// FirmwareHandler exposes the firmware store endpoints.
type FirmwareHandler struct {
	cfg     *config.Config
	service *firmware.Service
	events  *notifier.Notifier
	log     zerolog.Logger
}

func NewFirmwareHandler(cfg *config.Config, service *firmware.Service, events *notifier.Notifier, log zerolog.Logger) *FirmwareHandler {
	return &FirmwareHandler{
		cfg:     cfg,
		service: service,
		events:  events,
		log:     log.With().Str("component", "firmware-handler").Logger(),
	}
}

type firmwareUploadResponse struct {
	ModelCode string `json:"model_code"`
	Version   string `json:"version"`
}

// Upload godoc
// @Summary      Upload a firmware bundle
// @Description  Accepts a multipart bundle (image, symbols, sizemap, debugmap, manifest) and stores it as the model's current firmware. The version is read from the image's embedded app descriptor.
// @Tags         firmware
// @Accept       multipart/form-data
// @Produce      json
// @Param        code      path      string  true  "Model code"
// @Param        image     formData  file    true  "Firmware image"
// @Param        symbols   formData  file    true  "Symbol file"
// @Param        sizemap   formData  file    true  "Size map"
// @Param        debugmap  formData  file    true  "Debug map"
// @Param        manifest  formData  file    true  "Build manifest"
// @Success      200  {object}  firmwareUploadResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/models/{code}/firmware [post]
func (h *FirmwareHandler) Upload(c *gin.Context) {
	modelCode := c.Param("code")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	bundle := firmware.Bundle{}
	parts := map[string]*[]byte{
		firmware.ArtifactImage:    &bundle.Image,
		firmware.ArtifactSymbols:  &bundle.Symbols,
		firmware.ArtifactSizeMap:  &bundle.SizeMap,
		firmware.ArtifactDebugMap: &bundle.DebugMap,
		firmware.ArtifactManifest: &bundle.Manifest,
	}
	for name, dest := range parts {
		data, err := readFormFile(form, name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing bundle part: " + name})
			return
		}
		*dest = data
	}

	version, err := h.service.Save(c.Request.Context(), modelCode, bundle)
	if err != nil {
		h.log.Error().Err(err).Str("model", modelCode).Msg("firmware upload failed")
		responses.HandleError(c, err, "firmware upload failed")
		return
	}

	h.events.FirmwareUploaded(c.Request.Context(), modelCode, version)
	c.JSON(http.StatusOK, firmwareUploadResponse{ModelCode: modelCode, Version: version})
}

// Download godoc
// @Summary      Download a firmware artifact
// @Description  Streams the named artifact of the model's current firmware version.
// @Tags         firmware
// @Produce      octet-stream
// @Param        code      path  string  true  "Model code"
// @Param        artifact  path  string  true  "Artifact name (image, symbols, sizemap, debugmap, manifest)"
// @Success      200  "binary data"
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/models/{code}/firmware/{artifact} [get]
func (h *FirmwareHandler) Download(c *gin.Context) {
	modelCode := c.Param("code")
	artifact := c.Param("artifact")

	reader, contentType, err := h.service.GetStream(c.Request.Context(), modelCode, artifact)
	if err != nil {
		responses.HandleError(c, err, "firmware artifact not available")
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.log.Error().Err(err).Str("model", modelCode).Str("artifact", artifact).Msg("stream error")
	}
}

// Delete godoc
// @Summary      Delete all firmware of a model
// @Tags         firmware
// @Produce      json
// @Param        code  path  string  true  "Model code"
// @Success      204  "no content"
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /v1/models/{code}/firmware [delete]
func (h *FirmwareHandler) Delete(c *gin.Context) {
	modelCode := c.Param("code")
	exists, err := h.service.Exists(c.Request.Context(), modelCode)
	if err != nil {
		responses.HandleError(c, err, "firmware delete failed")
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "no firmware stored for model"})
		return
	}
	if err := h.service.Delete(c.Request.Context(), modelCode); err != nil {
		responses.HandleError(c, err, "firmware delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func readFormFile(form *multipart.Form, name string) ([]byte, error) {
	files := form.File[name]
	if len(files) == 0 {
		return nil, http.ErrMissingFile
	}
	file, err := files[0].Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
