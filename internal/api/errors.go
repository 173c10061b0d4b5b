package api

import (
	"errors"
	"fmt"
	"net/http"

	"clipriver/internal/storage"
)

// RequestError pairs an HTTP status code with a client-facing message.
// Handlers build these directly or map datastore sentinels through
// storageError.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// ValidationError builds a 400 RequestError.
func ValidationError(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError builds a 404 RequestError.
func NotFoundError(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// UnauthorizedError builds a 401 RequestError.
func UnauthorizedError(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError builds a 403 RequestError.
func ForbiddenError(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// ConflictError builds a 409 RequestError.
func ConflictError(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError builds a 502 RequestError for failures of external
// collaborators (mail relay, IP services).
func UpstreamError(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadGateway, Message: fmt.Sprintf(format, args...)}
}

// storageError maps datastore sentinel errors onto RequestError values.
// Unrecognized errors become 500s.
func storageError(err error) *RequestError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return &RequestError{Status: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, storage.ErrConflict):
		return &RequestError{Status: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, storage.ErrInvalidCredentials):
		return &RequestError{Status: http.StatusUnauthorized, Message: "invalid credentials"}
	case errors.Is(err, storage.ErrResetCodeInvalid):
		return &RequestError{Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, storage.ErrInvalidMediaName):
		return &RequestError{Status: http.StatusBadRequest, Message: err.Error()}
	default:
		return &RequestError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}
