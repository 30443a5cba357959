package http

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"time"
)

// ClientError is implemented by every error the fetcher returns.
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of client error
type ErrorType string

const (
	NetworkError     ErrorType = "network"
	TimeoutError     ErrorType = "timeout"
	HTTPError        ErrorType = "http"
	ValidationError  ErrorType = "validation"
	InterceptorError ErrorType = "interceptor"
	ExhaustedError   ErrorType = "exhausted"
	CancelledError   ErrorType = "cancelled"
)

// networkError is a transport fault: refused connection, DNS failure, broken body.
type networkError struct {
	message string
	wrapped error
}

func (e *networkError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.wrapped)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }

func (e *networkError) Unwrap() error { return e.wrapped }

// timeoutError reports an attempt that exceeded the per-attempt deadline.
type timeoutError struct {
	message string
	timeout time.Duration
	wrapped error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }

func (e *timeoutError) Unwrap() error { return e.wrapped }

// StatusError is the fault raised for a response that is neither 2xx nor 404.
type StatusError struct {
	statusCode int
	body       []byte
	header     nethttp.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: fetch failed with status: %d", e.statusCode)
}

func (e *StatusError) Type() ErrorType { return HTTPError }

// StatusCode returns the HTTP status of the failed attempt.
func (e *StatusError) StatusCode() int { return e.statusCode }

// Body returns the response body of the failed attempt.
func (e *StatusError) Body() []byte { return e.body }

// Header returns the response headers of the failed attempt.
func (e *StatusError) Header() nethttp.Header { return e.header }

type validationError struct {
	message string
	field   string
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

type interceptorError struct {
	message string
	wrapped error
}

func (e *interceptorError) Error() string {
	return fmt.Sprintf("interceptor error: %s: %v", e.message, e.wrapped)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }

func (e *interceptorError) Unwrap() error { return e.wrapped }

// Exhausted is returned when the retry budget ran out. It wraps the fault of
// the final attempt unchanged.
type Exhausted struct {
	Attempts int
	last     error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.last)
}

func (e *Exhausted) Type() ErrorType { return ExhaustedError }

func (e *Exhausted) Unwrap() error { return e.last }

// Last returns the fault of the final attempt.
func (e *Exhausted) Last() error { return e.last }

// Cancelled is returned when the caller's context ended the call chain,
// either during an attempt or during a backoff delay.
type Cancelled struct {
	Attempts int
	cause    error
	last     error
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("request cancelled after %d attempts: %v", e.Attempts, e.cause)
}

func (e *Cancelled) Type() ErrorType { return CancelledError }

// Unwrap exposes the context cause so errors.Is(err, context.Canceled) holds.
func (e *Cancelled) Unwrap() error { return e.cause }

// Last returns the fault of the attempt preceding cancellation, if any.
func (e *Cancelled) Last() error { return e.last }

// NewNetworkError creates a new network error
func NewNetworkError(message string, wrapped error) ClientError {
	return &networkError{message: message, wrapped: wrapped}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, timeout time.Duration, wrapped error) ClientError {
	return &timeoutError{message: message, timeout: timeout, wrapped: wrapped}
}

// NewStatusError creates the fault for a non-resolved response
func NewStatusError(statusCode int, body []byte, header nethttp.Header) *StatusError {
	return &StatusError{statusCode: statusCode, body: body, header: header}
}

// NewValidationError creates a new validation error
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

// NewInterceptorError creates a new interceptor error
func NewInterceptorError(message string, wrapped error) ClientError {
	return &interceptorError{message: message, wrapped: wrapped}
}

// IsErrorType reports whether any error in err's chain has the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	for err != nil {
		var clientErr ClientError
		if !errors.As(err, &clientErr) {
			return false
		}
		if clientErr.Type() == errorType {
			return true
		}
		err = errors.Unwrap(clientErr)
	}
	return false
}

// IsExhausted reports whether err ended with the retry budget spent.
func IsExhausted(err error) bool {
	var ex *Exhausted
	return errors.As(err, &ex)
}

// IsCancelled reports whether err ended through caller cancellation.
func IsCancelled(err error) bool {
	var c *Cancelled
	return errors.As(err, &c)
}

// IsHTTPStatusError checks if an error is a status error with a specific status code
func IsHTTPStatusError(err error, statusCode int) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode() == statusCode
	}
	return false
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsResolvedStatus reports whether a status ends the retry loop: success or 404.
func IsResolvedStatus(statusCode int) bool {
	return IsSuccessStatus(statusCode) || statusCode == nethttp.StatusNotFound
}
