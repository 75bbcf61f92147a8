package responses

import (
	"errors"
	"net/http"

	"fleethub/internal/domain/crashdump"
	"fleethub/internal/domain/firmware"
	"fleethub/internal/utils/platformerrors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response with platform error details
type ErrorResponse struct {
	Code          string `json:"code,omitempty"` // UUID from PlatformError
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	ErrorInstance error  `json:"-"`
	RequestID     string `json:"request_id,omitempty"`
}

// HandleError maps domain and platform errors to HTTP responses.
func HandleError(reqCtx *gin.Context, err error, message string) {
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		statusCode := platformerrors.ErrorTypeToHTTPStatus(platformErr.GetErrorType())

		errorMessage := platformErr.Message
		if errorMessage == "" {
			errorMessage = message
		}

		reqCtx.AbortWithStatusJSON(statusCode, ErrorResponse{
			Code:          platformErr.GetUUID(),
			Error:         errorMessage,
			Message:       errorMessage,
			ErrorInstance: platformErr,
			RequestID:     platformErr.GetRequestID(),
		})
		return
	}

	// Domain sentinels surface without a platform wrapper when the store
	// itself rejects the operation.
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, firmware.ErrNotFound), errors.Is(err, crashdump.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, firmware.ErrInvalidBundle), errors.Is(err, crashdump.ErrValidation):
		status = http.StatusBadRequest
	}

	reqCtx.AbortWithStatusJSON(status, ErrorResponse{
		Error:         message,
		Message:       err.Error(),
		ErrorInstance: err,
	})
}

// HandleNewError creates a new typed error at the route layer and handles it
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string) {
	ctx := reqCtx.Request.Context()
	err := platformerrors.NewError(ctx, platformerrors.LayerRoute, errorType, message, nil, uuid)

	statusCode := platformerrors.ErrorTypeToHTTPStatus(err.GetErrorType())

	reqCtx.AbortWithStatusJSON(statusCode, ErrorResponse{
		Code:          err.GetUUID(),
		Error:         message,
		Message:       message,
		ErrorInstance: err,
		RequestID:     err.GetRequestID(),
	})
}
