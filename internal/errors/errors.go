package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"hoopval/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code is inherited from a
// wrapped AppError, otherwise derived from the domain sentinel it carries.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError, the code matching a
// domain sentinel, or INTERNAL_ERROR. A nil error has no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case core.IsConfigurationError(err):
		return CodeConfigInvalid
	case core.IsInsufficientData(err):
		return CodeDataInsufficient
	case core.IsDegenerate(err):
		return CodeNumericDegenerate
	case core.IsNotFoundError(err):
		return CodeNotFound
	default:
		return CodeInternalError
	}
}

// HTTPStatus maps an error to the response status of the API
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case "":
		return http.StatusOK
	case CodeConfigInvalid, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeDataInsufficient, CodeNumericDegenerate:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Predefined error codes
const (
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeDataInsufficient  = "DATA_INSUFFICIENT"
	CodeNumericDegenerate = "NUMERIC_DEGENERATE"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
)

// Common error constructors

// ConfigInvalid wraps core.ErrConfiguration so errors.Is still matches
func ConfigInvalid(message string) *AppError {
	return &AppError{Code: CodeConfigInvalid, Message: message, Cause: core.ErrConfiguration}
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource), Cause: core.ErrNotFound}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
