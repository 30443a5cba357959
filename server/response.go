package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/escribo/escribo-web/trace"
)

// APIResponse represents the standardized API response format.
type APIResponse struct {
	Data  any               `json:"data,omitempty"`
	Error *APIErrorResponse `json:"error,omitempty"`
	Meta  map[string]any    `json:"meta"`
}

// APIErrorResponse represents the error portion of an API response.
type APIErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func formatSuccessResponse(c echo.Context, status int, data any) error {
	ensureTraceParentHeader(c)
	return c.JSON(status, APIResponse{
		Data: data,
		Meta: responseMeta(c),
	})
}

// formatErrorResponse writes the error envelope. Details are only exposed when
// debug is set so upstream error text never leaks in production.
func formatErrorResponse(c echo.Context, apiErr IAPIError, debug bool) error {
	errorResp := &APIErrorResponse{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.Message(),
	}
	if debug {
		if details := apiErr.Details(); len(details) > 0 {
			errorResp.Details = details
		}
	}

	ensureTraceParentHeader(c)
	return c.JSON(apiErr.HTTPStatus(), APIResponse{
		Error: errorResp,
		Meta:  responseMeta(c),
	})
}

func responseMeta(c echo.Context) map[string]any {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"traceId":   getTraceID(c),
	}
}

// getTraceID resolves the correlation ID from the request context, then the
// request ID headers. A new ID is stored on the response when none exists.
func getTraceID(c echo.Context) string {
	if id, ok := trace.IDFromContext(c.Request().Context()); ok {
		return id
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	id := trace.EnsureID(c.Request().Context())
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	return id
}

func ensureTraceParentHeader(c echo.Context) {
	h := c.Response().Header()
	if h.Get(trace.HeaderTraceParent) != "" {
		return
	}
	if tp, ok := trace.ParentFromContext(c.Request().Context()); ok {
		h.Set(trace.HeaderTraceParent, tp)
		return
	}
	if tp := c.Request().Header.Get(trace.HeaderTraceParent); tp != "" {
		h.Set(trace.HeaderTraceParent, tp)
		return
	}
	h.Set(trace.HeaderTraceParent, trace.NewParent())
}

// writeAttachment sends a binary download outside the JSON envelope.
func writeAttachment(c echo.Context, filename, contentType string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	ensureTraceParentHeader(c)
	return c.Blob(http.StatusOK, contentType, body)
}
