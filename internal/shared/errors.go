package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrPermissionDenied     = errors.New("microphone permission denied")
	ErrDeviceError          = errors.New("audio device error")
	ErrAlreadyActive        = errors.New("already active")
	ErrNotConnected         = errors.New("not connected")
	ErrAudioNotReady        = errors.New("audio pipeline not ready")
	ErrNotReady             = errors.New("recording sources not ready")
	ErrNoRecordingAvailable = errors.New("no recording available to download")
	ErrRecordingInProgress  = errors.New("recording in progress")
	ErrUnavailable          = errors.New("backend unavailable")
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func BadRequest(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusBadRequest)
}

func Forbidden(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusForbidden)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

func Conflict(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusConflict)
}

func InternalError(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusInternalServerError)
}

func Unavailable(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusServiceUnavailable)
}

// ToHTTPError translates an engine error into the API error shape.
func ToHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return Forbidden("permission_denied", err.Error())
	case errors.Is(err, ErrNoRecordingAvailable):
		return NotFound("no_recording_available", err.Error())
	case errors.Is(err, ErrNotFound):
		return NotFound("not_found", err.Error())
	case errors.Is(err, ErrAlreadyActive):
		return Conflict("already_active", err.Error())
	case errors.Is(err, ErrRecordingInProgress):
		return Conflict("recording_in_progress", err.Error())
	case errors.Is(err, ErrNotConnected):
		return Conflict("not_connected", err.Error())
	case errors.Is(err, ErrDeviceError):
		return Unavailable("device_error", err.Error())
	case errors.Is(err, ErrUnavailable):
		return Unavailable("backend_unavailable", err.Error())
	default:
		return InternalError("internal_error", err.Error())
	}
}
