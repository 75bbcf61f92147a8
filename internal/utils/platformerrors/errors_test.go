package platformerrors

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestPlatformErrorWrapping(t *testing.T) {
	sentinel := errors.New("row missing")
	err := NewError(context.Background(), LayerRepository, ErrorTypeNotFound, "crash dump not found", sentinel, "uuid-1")

	if !errors.Is(err, sentinel) {
		t.Error("wrapped sentinel not reachable via errors.Is")
	}

	var platformErr *PlatformError
	if !errors.As(err, &platformErr) {
		t.Fatal("errors.As failed")
	}
	if platformErr.GetErrorType() != ErrorTypeNotFound {
		t.Errorf("type = %s, want NOT_FOUND", platformErr.GetErrorType())
	}
	if platformErr.GetUUID() != "uuid-1" {
		t.Errorf("uuid = %s, want uuid-1", platformErr.GetUUID())
	}
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      int
	}{
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeConflict, http.StatusConflict},
		{ErrorTypeUnauthorized, http.StatusUnauthorized},
		{ErrorTypeForbidden, http.StatusForbidden},
		{ErrorTypeDatabaseError, http.StatusInternalServerError},
		{ErrorTypeStorageError, http.StatusInternalServerError},
		{ErrorTypeExternal, http.StatusBadGateway},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorTypeToHTTPStatus(tt.errorType); got != tt.want {
			t.Errorf("ErrorTypeToHTTPStatus(%s) = %d, want %d", tt.errorType, got, tt.want)
		}
	}
}

func TestAsErrorPreservesType(t *testing.T) {
	inner := NewError(context.Background(), LayerRepository, ErrorTypeConflict, "duplicate", nil, "uuid-2")
	wrapped := AsError(context.Background(), LayerDomain, inner, "save failed")

	if wrapped.Type != ErrorTypeConflict {
		t.Errorf("type = %s, want CONFLICT preserved through wrapping", wrapped.Type)
	}
	if wrapped.UUID != "uuid-2" {
		t.Errorf("uuid = %s, want uuid-2 preserved", wrapped.UUID)
	}
}

func TestAsErrorNil(t *testing.T) {
	if got := AsError(context.Background(), LayerDomain, nil, "noop"); got != nil {
		t.Errorf("AsError(nil) = %v, want nil", got)
	}
}
