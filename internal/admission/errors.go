package admission

import (
	"fmt"
	"net/http"

	"formrelay/internal/models"
)

// Rejection codes, also used as metric and log labels.
const (
	CodeAbusiveSource = "ABUSIVE_SOURCE"
	CodeCoolingDown   = "COOLING_DOWN"
	CodeUnavailable   = "UNAVAILABLE"
)

// RejectionError is a terminal admission outcome with its HTTP mapping.
type RejectionError struct {
	Code       string
	Message    string
	StatusCode int
	// RetryAfter is the remaining cooldown in whole seconds. Zero unless
	// Code is CodeCoolingDown.
	RetryAfter int
	Err        error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func NewAbusiveSourceError() *RejectionError {
	return &RejectionError{
		Code:       CodeAbusiveSource,
		Message:    models.MessageUnsupportedIP,
		StatusCode: http.StatusForbidden,
	}
}

func NewCooldownError(waitSeconds int) *RejectionError {
	return &RejectionError{
		Code:       CodeCoolingDown,
		Message:    fmt.Sprintf("Slow down! You must wait %d seconds before sending another message.", waitSeconds),
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: waitSeconds,
	}
}

func NewUnavailableError(err error) *RejectionError {
	return &RejectionError{
		Code:       CodeUnavailable,
		Message:    models.MessageSendFailed,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
