package quota

import (
	"fmt"
	"net/http"

	"github.com/rozmerigpt/user-limiter/internal/models"
)

// ServiceError represents errors from the quota service with HTTP context.
// Only client mistakes (malformed or unrecognized input) surface as
// ServiceError; evaluation-side failures are absorbed by the fail-open
// policy and never reach the caller as errors.
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewUnknownActionError(action string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    fmt.Sprintf("unknown action '%s'", action),
		StatusCode: http.StatusBadRequest,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
