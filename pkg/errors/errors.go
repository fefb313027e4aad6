// Package errors defines the sentinel errors shared by the indexing core and
// its services, plus an AppError carrying an HTTP status for handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrStoreFailure      = errors.New("store failure")
	ErrMalformedLogEntry = errors.New("malformed log entry")
	ErrEncodingFailed    = errors.New("phonetic encoding failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Store wraps err as an ErrStoreFailure, naming the operation that failed.
// A nil err stays nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrMalformedLogEntry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStoreFailure), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
