package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dentflow/dentflow-backend/pkg/i18n"
)

// Sentinel errors. Every AppError wraps one of them so callers can use errors.Is.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("resource conflict")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal server error")
	ErrValidation      = errors.New("validation error")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("invalid token")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns the message translated to the locale carried by ctx.
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func newKeyed(sentinel error, code, key string, status int, params map[string]string) *AppError {
	return &AppError{
		Err:        sentinel,
		Code:       code,
		Message:    i18n.T(key, params),
		MessageKey: key,
		Params:     params,
		StatusCode: status,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return newKeyed(ErrNotFound, "NOT_FOUND", "errors.not_found", http.StatusNotFound,
		map[string]string{"resource": resource})
}

// DuplicateName reports that a live resource with the same name already exists in the clinic.
func DuplicateName(resource, name string) *AppError {
	return newKeyed(ErrDuplicateName, "DUPLICATE_NAME", "errors.duplicate_name", http.StatusBadRequest,
		map[string]string{"resource": resource, "name": name})
}

// InvalidArgument reports a semantically invalid request field.
func InvalidArgument(field, message string) *AppError {
	e := newKeyed(ErrInvalidArgument, "INVALID_ARGUMENT", "errors.invalid_argument", http.StatusBadRequest,
		map[string]string{"field": field, "reason": message})
	e.Details = map[string]string{field: message}
	return e
}

func Unauthorized(message string) *AppError {
	e := newKeyed(ErrUnauthorized, "UNAUTHORIZED", "errors.unauthorized", http.StatusUnauthorized, nil)
	e.Message = message
	return e
}

func Forbidden(message string) *AppError {
	e := newKeyed(ErrForbidden, "FORBIDDEN", "errors.forbidden", http.StatusForbidden, nil)
	e.Message = message
	return e
}

func BadRequest(message string) *AppError {
	e := newKeyed(ErrBadRequest, "BAD_REQUEST", "errors.bad_request", http.StatusBadRequest, nil)
	e.Message = message
	return e
}

func Conflict(message string) *AppError {
	e := newKeyed(ErrConflict, "CONFLICT", "errors.conflict", http.StatusConflict, nil)
	e.Message = message
	return e
}

func Internal(message string) *AppError {
	e := newKeyed(ErrInternal, "INTERNAL_ERROR", "errors.internal", http.StatusInternalServerError, nil)
	e.Message = message
	return e
}

func Validation(details map[string]string) *AppError {
	e := newKeyed(ErrValidation, "VALIDATION_ERROR", "errors.validation_failed", http.StatusBadRequest, nil)
	e.Details = details
	return e
}

func TokenExpired() *AppError {
	return newKeyed(ErrTokenExpired, "TOKEN_EXPIRED", "errors.token_expired", http.StatusUnauthorized, nil)
}

func TokenInvalid() *AppError {
	return newKeyed(ErrTokenInvalid, "TOKEN_INVALID", "errors.token_invalid", http.StatusUnauthorized, nil)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// From extracts the AppError from err's chain, or nil if there is none.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
