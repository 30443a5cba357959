package server

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/escribo/escribo-web/escribo"
	apihttp "github.com/escribo/escribo-web/http"
)

// IAPIError defines the interface for API errors with structured information.
type IAPIError interface {
	ErrorCode() string
	Message() string
	HTTPStatus() int
	Details() map[string]any
}

// BaseAPIError provides a basic implementation of IAPIError.
type BaseAPIError struct {
	code       string
	message    string
	httpStatus int
	details    map[string]any
}

// NewBaseAPIError creates a new base API error.
func NewBaseAPIError(code, message string, httpStatus int) *BaseAPIError {
	return &BaseAPIError{
		code:       code,
		message:    message,
		httpStatus: httpStatus,
		details:    make(map[string]any),
	}
}

// ErrorCode returns the error code.
func (e *BaseAPIError) ErrorCode() string {
	return e.code
}

// Message returns the error message.
func (e *BaseAPIError) Message() string {
	return e.message
}

// HTTPStatus returns the HTTP status code.
func (e *BaseAPIError) HTTPStatus() int {
	return e.httpStatus
}

// Details returns a copy of the error details.
func (e *BaseAPIError) Details() map[string]any {
	if e.details == nil {
		return nil
	}
	cp := make(map[string]any, len(e.details))
	maps.Copy(cp, e.details)
	return cp
}

// WithDetails adds details to the error.
func (e *BaseAPIError) WithDetails(key string, value any) *BaseAPIError {
	e.details[key] = value
	return e
}

func (e *BaseAPIError) Error() string {
	if e == nil {
		return ""
	}
	if e.code == "" {
		return e.message
	}
	return e.code + ": " + e.message
}

// NewNotFoundError creates a 404 error for resource.
func NewNotFoundError(resource string) *BaseAPIError {
	return NewBaseAPIError("NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewBadRequestError creates a 400 error.
func NewBadRequestError(message string) *BaseAPIError {
	return NewBaseAPIError("BAD_REQUEST", message, http.StatusBadRequest)
}

// NewUnauthorizedError creates a 401 error.
func NewUnauthorizedError(message string) *BaseAPIError {
	if message == "" {
		message = "Authentication required"
	}
	return NewBaseAPIError("UNAUTHORIZED", message, http.StatusUnauthorized)
}

// NewForbiddenError creates a 403 error.
func NewForbiddenError(message string) *BaseAPIError {
	if message == "" {
		message = "Access denied"
	}
	return NewBaseAPIError("FORBIDDEN", message, http.StatusForbidden)
}

// NewBadGatewayError creates a 502 error for upstream answers the workflow cannot use.
func NewBadGatewayError(message string) *BaseAPIError {
	return NewBaseAPIError("BAD_GATEWAY", message, http.StatusBadGateway)
}

// NewServiceUnavailableError creates a 503 error.
func NewServiceUnavailableError(message string) *BaseAPIError {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return NewBaseAPIError("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable)
}

// NewInternalServerError creates a 500 error.
func NewInternalServerError(message string) *BaseAPIError {
	if message == "" {
		message = "An internal error occurred"
	}
	return NewBaseAPIError("INTERNAL_ERROR", message, http.StatusInternalServerError)
}

// NewTooManyRequestsError creates a 429 error.
func NewTooManyRequestsError(message string) *BaseAPIError {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return NewBaseAPIError("TOO_MANY_REQUESTS", message, http.StatusTooManyRequests)
}

// mapError translates an escribo or fetcher error into an API error. resource
// names the looked up entity in 404 messages.
func mapError(err error, resource string) *BaseAPIError {
	var batchErr *escribo.BatchError
	switch {
	case errors.Is(err, escribo.ErrNotFound):
		return NewNotFoundError(resource)
	case errors.Is(err, escribo.ErrMissingToken):
		return NewUnauthorizedError("")
	case errors.Is(err, escribo.ErrInvalidCount):
		return NewBadRequestError(fmt.Sprintf("count must be between 1 and %d", escribo.MaxBatchSize))
	case errors.As(err, &batchErr) && apihttp.IsHTTPStatusError(err, http.StatusUnauthorized):
		return NewUnauthorizedError(fmt.Sprintf("QR batch %s step was refused upstream. Ensure you are an admin", batchErr.Step)).WithDetails("error", err.Error())
	case errors.As(err, &batchErr) && apihttp.IsHTTPStatusError(err, http.StatusForbidden):
		return NewForbiddenError(fmt.Sprintf("QR batch %s step was refused upstream. Ensure you are an admin", batchErr.Step)).WithDetails("error", err.Error())
	case apihttp.IsExhausted(err):
		return NewServiceUnavailableError("Upstream API unavailable").WithDetails("error", err.Error())
	case apihttp.IsCancelled(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewServiceUnavailableError("Request cancelled before the upstream API answered").WithDetails("error", err.Error())
	case errors.As(err, &batchErr) && errors.Is(err, escribo.ErrUnexpectedStatus):
		return NewBadGatewayError(fmt.Sprintf("QR batch %s step was rejected upstream", batchErr.Step)).WithDetails("error", err.Error())
	default:
		return NewInternalServerError("").WithDetails("error", err.Error())
	}
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

var _ IAPIError = (*BaseAPIError)(nil)
