package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"

	// Corpus and pipeline errors
	ErrCodeInvalidCorpus   ErrorCode = "INVALID_CORPUS"
	ErrCodeUnknownProcess  ErrorCode = "UNKNOWN_PROCESS"
	ErrCodeInactiveProcess ErrorCode = "INACTIVE_PROCESS"
	ErrCodeConfigError     ErrorCode = "CONFIG_ERROR"
	ErrCodeTransformError  ErrorCode = "TRANSFORM_ERROR"
	ErrCodeNoTrainedModel  ErrorCode = "NO_TRAINED_MODEL"

	// Persistence errors
	ErrCodePersistenceError ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"

	// Queue errors
	ErrCodeQueueError ErrorCode = "QUEUE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// Corpus and pipeline errors

// InvalidCorpus reports a corpus that is neither a list, a path nor a stream.
func InvalidCorpus(received interface{}) *AppError {
	return New(ErrCodeInvalidCorpus,
		fmt.Sprintf("invalid corpus type: expected list of strings, file path or stream, received %T", received),
		http.StatusBadRequest)
}

func UnknownProcess(alias string) *AppError {
	return New(ErrCodeUnknownProcess,
		fmt.Sprintf("unknown pipeline process: %s", alias),
		http.StatusBadRequest).WithDetails("alias", alias)
}

func InactiveProcess(alias string) *AppError {
	return New(ErrCodeInactiveProcess,
		fmt.Sprintf("pipeline process %s is not active", alias),
		http.StatusConflict).WithDetails("alias", alias)
}

func ConfigError(err error, message string) *AppError {
	return Wrap(err, ErrCodeConfigError, message, http.StatusBadRequest)
}

// TransformError wraps a failure raised while a rule was applied to one record.
func TransformError(err error, rule string, record int) *AppError {
	return Wrap(err, ErrCodeTransformError, "text transformation failed", http.StatusUnprocessableEntity).
		WithDetails("rule", rule).
		WithDetails("record", record)
}

func NoTrainedModel(featurizer string) *AppError {
	return New(ErrCodeNoTrainedModel,
		fmt.Sprintf("%s has no trained model", featurizer),
		http.StatusConflict)
}

// Persistence errors

func PersistenceError(err error, path string) *AppError {
	return Wrap(err, ErrCodePersistenceError, "failed to persist output", http.StatusInternalServerError).
		WithDetails("path", path)
}

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError)
}

func QueueError(err error) *AppError {
	return Wrap(err, ErrCodeQueueError, "queue operation failed", http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err carries an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Code == code
}

// StatusCode returns the HTTP status carried by err, 500 when there is none
func StatusCode(err error) int {
	if appErr, ok := GetAppError(err); ok && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
