package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kuhlman-labs/migration-tracker/internal/storage"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/kuhlman-labs/migration-tracker/internal/worker"
)

// APIError represents a standardized API error response.
// It includes an HTTP status code and a user-facing message.
type APIError struct {
	Code    int    `json:"-"`                 // HTTP status code
	Message string `json:"error"`             // User-facing error message
	Details string `json:"details,omitempty"` // Optional additional details
	Field   string `json:"field,omitempty"`   // Optional field name for validation errors
}

// Error implements the error interface.
func (e APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// StatusCode returns the HTTP status code for this error.
func (e APIError) StatusCode() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// WithDetails returns a copy of the error with additional details.
func (e APIError) WithDetails(details string) APIError {
	e.Details = details
	return e
}

// WithField returns a copy of the error with a field name.
func (e APIError) WithField(field string) APIError {
	e.Field = field
	return e
}

// Common API errors
var (
	ErrBadRequest = APIError{
		Code:    http.StatusBadRequest,
		Message: "Bad request",
	}
	ErrInvalidJSON = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid JSON in request body",
	}
	ErrMissingField = APIError{
		Code:    http.StatusBadRequest,
		Message: "Required field is missing",
	}
	ErrInvalidField = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid field value",
	}
	ErrInvalidSchedule = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid cron schedule",
	}

	ErrUnauthorized = APIError{
		Code:    http.StatusUnauthorized,
		Message: "Authentication required",
	}
	ErrInvalidToken = APIError{
		Code:    http.StatusUnauthorized,
		Message: "Invalid or expired token",
	}

	ErrNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Resource not found",
	}
	ErrSyncNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Sync not found",
	}
	ErrMigrationNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Migration not found",
	}

	ErrSyncInProgress = APIError{
		Code:    http.StatusConflict,
		Message: "A sync is already in progress for this enterprise",
	}

	ErrUpstream = APIError{
		Code:    http.StatusBadGateway,
		Message: "GitHub request failed",
	}

	ErrInternal = APIError{
		Code:    http.StatusInternalServerError,
		Message: "An internal error occurred",
	}
	ErrDatabaseFetch = APIError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to retrieve data",
	}

	ErrServiceUnavailable = APIError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service temporarily unavailable",
	}
	ErrStreamingUnsupported = APIError{
		Code:    http.StatusInternalServerError,
		Message: "Streaming is not supported by this connection",
	}
)

// WriteError writes an APIError to the response writer.
func WriteError(w http.ResponseWriter, err APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(err)
}

// WriteErrorFromErr writes an error to the response writer.
// APIErrors and known sync errors keep their status code; anything else
// is a 500.
func WriteErrorFromErr(w http.ResponseWriter, err error) {
	WriteError(w, toAPIError(err))
}

func toAPIError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var credErr *syncer.CredentialError
	var listErr *syncer.OrganizationListError
	var schedErr *worker.SchedulingError
	switch {
	case errors.As(err, &credErr):
		return ErrInvalidToken.WithDetails(err.Error())
	case errors.As(err, &listErr):
		return ErrUpstream.WithDetails(err.Error())
	case errors.As(err, &schedErr):
		return ErrInvalidSchedule.WithDetails(schedErr.Err.Error()).WithField("schedule")
	case errors.Is(err, syncer.ErrSyncInProgress):
		return ErrSyncInProgress
	case errors.Is(err, storage.ErrMigrationNotFound):
		return ErrMigrationNotFound.WithDetails(err.Error())
	}
	return ErrInternal.WithDetails(err.Error())
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) APIError {
	return APIError{
		Code:    http.StatusUnprocessableEntity,
		Message: message,
		Field:   field,
	}
}

// NewNotFoundError creates a not found error for a specific resource.
func NewNotFoundError(resource, identifier string) APIError {
	return APIError{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}
