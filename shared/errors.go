package shared

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AppError is the error shape the HTTP layer knows how to render. Services
// return these (or wrap sentinel errors below) instead of writing responses
// themselves.
type AppError struct {
	StatusCode int
	Message    string
	Data       interface{}
	Err        error
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

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Message: message, Err: err}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Message: message}
}

func NewInternalError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Message: message, Err: err}
}

// RateLimitError covers both budget kinds: Global=false means the caller's
// own budget ran out (429), Global=true means the shared backing-API budget
// ran out (503) and the caller is not at fault.
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Global    bool
}

func (e *RateLimitError) Error() string {
	if e.Global {
		return "service temporarily unavailable, shared quota exhausted"
	}
	return "rate limit exceeded"
}

func (e *RateLimitError) StatusCode() int {
	if e.Global {
		return http.StatusServiceUnavailable
	}
	return http.StatusTooManyRequests
}

func (e *RateLimitError) RetryAfter() int {
	secs := int(time.Until(e.ResetAt).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (e *RateLimitError) Message() string {
	if e.Global {
		return "Service is temporarily over capacity. Please try again later."
	}
	return "Too many requests. Please try again later."
}

// Backing document-store sentinels. Auth failures need operator action
// (bad or under-scoped token), everything else is a generic upstream
// failure the caller may retry at their own discretion.
var (
	ErrDocStoreAuth = errors.New("document store rejected credentials")
	ErrDocNotFound  = errors.New("document not found")
)

// DocStoreError wraps transport failures and unexpected statuses from the
// backing document API.
type DocStoreError struct {
	Op     string
	Status int
	Err    error
}

func (e *DocStoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("document store %s failed with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("document store %s failed: %v", e.Op, e.Err)
}

func (e *DocStoreError) Unwrap() error {
	return e.Err
}
