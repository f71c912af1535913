package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error codes surfaced by the checklist engine. Transport layers map them to
// status codes via AppError.StatusCode; callers test kinds with HasCode.
const (
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeInactive              = "INACTIVE"
	CodePermissionDenied      = "PERMISSION_DENIED"
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidSchema         = "INVALID_SCHEMA"
	CodeCycleInVisibility     = "CYCLE_IN_CONDITIONAL_VISIBILITY"
	CodeInvalidFrequency      = "INVALID_FREQUENCY"
	CodeIncompleteSubmission  = "INCOMPLETE_SUBMISSION"
	CodeTypeMismatch          = "TYPE_MISMATCH"
	CodeOptionNotPermitted    = "OPTION_NOT_PERMITTED"
	CodeRepeatCountMismatch   = "REPEAT_COUNT_MISMATCH"
	CodeConflictingUniqueness = "CONFLICTING_UNIQUENESS"
	CodeConflict              = "CONFLICT"
	CodeValidation            = "VALIDATION_ERROR"
	CodeBadRequest            = "BAD_REQUEST"
	CodeInternal              = "INTERNAL_ERROR"
)

// Standard error types
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")
	ErrInternal         = errors.New("internal server error")
	ErrValidation       = errors.New("validation error")
	ErrRejectedResponse = errors.New("submission rejected")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("invalid token")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
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

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// FieldIDs returns the sorted detail keys. Evaluator errors key their
// details by offending field.
func (e *AppError) FieldIDs() []string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthenticated,
		Code:       CodeUnauthenticated,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Inactive(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       CodeInactive,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func PermissionDenied(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       CodePermissionDenied,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       CodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       CodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func ConflictingUniqueness(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       CodeConflictingUniqueness,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeValidation,
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidSchema reports a template that violates the field ordering rules.
func InvalidSchema(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeInvalidSchema,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// CycleInVisibility reports a show_if predicate that points at itself or forward.
func CycleInVisibility(fieldKey, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeCycleInVisibility,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{fieldKey: message},
	}
}

func InvalidFrequency(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       CodeInvalidFrequency,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Rejection builds one of the evaluator rejection kinds
// (INCOMPLETE_SUBMISSION, TYPE_MISMATCH, OPTION_NOT_PERMITTED,
// REPEAT_COUNT_MISMATCH). details maps offending field keys to reasons.
func Rejection(code string, details map[string]string) *AppError {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg string
	switch code {
	case CodeIncompleteSubmission:
		msg = "required fields are missing"
	case CodeTypeMismatch:
		msg = "field values do not match their field types"
	case CodeOptionNotPermitted:
		msg = "value is not one of the permitted options"
	case CodeRepeatCountMismatch:
		msg = "repeating group size does not match its count field"
	default:
		msg = "submission rejected"
	}
	if len(keys) > 0 {
		msg += ": " + strings.Join(keys, ", ")
	}

	return &AppError{
		Err:        ErrRejectedResponse,
		Code:       code,
		Message:    msg,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       CodeUnauthenticated,
		Message:    "token has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       CodeUnauthenticated,
		Message:    "invalid token",
		StatusCode: http.StatusUnauthorized,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the AppError code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join so callers only import this package.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
