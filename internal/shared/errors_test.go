package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func apiErrorOf(t *testing.T, err *echo.HTTPError) *APIError {
	t.Helper()
	apiErr, ok := err.Message.(*APIError)
	if !ok {
		t.Fatalf("message is %T, want *APIError", err.Message)
	}
	return apiErr
}

func TestAPIError_Details(t *testing.T) {
	httpErr := NewAPIError("invalid_size", "size out of range").
		WithDetails(map[string]int{"max": 2048}).
		ToHTTP(http.StatusBadRequest)

	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", httpErr.Code)
	}
	apiErr := apiErrorOf(t, httpErr)
	if d, ok := apiErr.Details.(map[string]int); !ok || d["max"] != 2048 {
		t.Errorf("details = %#v", apiErr.Details)
	}
	if NewAPIError("x", "y").Details != nil {
		t.Error("fresh error should carry no details")
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		build  func(code, message string) *echo.HTTPError
		status int
	}{
		{"bad request", BadRequest, http.StatusBadRequest},
		{"forbidden", Forbidden, http.StatusForbidden},
		{"not found", NotFound, http.StatusNotFound},
		{"conflict", Conflict, http.StatusConflict},
		{"internal", InternalError, http.StatusInternalServerError},
		{"unavailable", Unavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := tt.build("some_code", "some message")
			if httpErr.Code != tt.status {
				t.Errorf("status = %d, want %d", httpErr.Code, tt.status)
			}
			apiErr := apiErrorOf(t, httpErr)
			if apiErr.Code != "some_code" || apiErr.Message != "some message" {
				t.Errorf("body = %+v", apiErr)
			}
		})
	}
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"permission", ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{"no recording", ErrNoRecordingAvailable, http.StatusNotFound, "no_recording_available"},
		{"wrapped not found", fmt.Errorf("get transcript: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"already active", ErrAlreadyActive, http.StatusConflict, "already_active"},
		{"in progress", ErrRecordingInProgress, http.StatusConflict, "recording_in_progress"},
		{"not connected", ErrNotConnected, http.StatusConflict, "not_connected"},
		{"device", fmt.Errorf("open input: %w", ErrDeviceError), http.StatusServiceUnavailable, "device_error"},
		{"backend", fmt.Errorf("probe: %w", ErrUnavailable), http.StatusServiceUnavailable, "backend_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := ToHTTPError(tt.err)
			if httpErr.Code != tt.status {
				t.Errorf("status = %d, want %d", httpErr.Code, tt.status)
			}
			if got := apiErrorOf(t, httpErr).Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}
