// Package trace carries request correlation identifiers through context so that
// inbound requests and the outbound API calls they trigger share one ID.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	nethttp "net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	idKey     contextKey = "trace_id"
	parentKey contextKey = "traceparent"

	// HeaderXRequestID carries the correlation ID
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header
	HeaderTraceParent = "traceparent"
)

// WithID stores a correlation ID in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// IDFromContext returns the correlation ID stored in ctx.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey).(string)
	return id, ok && id != ""
}

// EnsureID returns the stored correlation ID or a new UUID.
func EnsureID(ctx context.Context) string {
	if id, ok := IDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// WithParent stores a W3C traceparent value in ctx.
func WithParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, parentKey, traceParent)
}

// ParentFromContext returns the stored traceparent value.
func ParentFromContext(ctx context.Context) (string, bool) {
	tp, ok := ctx.Value(parentKey).(string)
	return tp, ok && tp != ""
}

// NewParent builds a sampled version-00 traceparent with random IDs.
func NewParent() string {
	traceID := randomHex(16)
	spanID := randomHex(8)
	return "00-" + traceID + "-" + spanID + "-01"
}

// Inject sets the correlation headers on h unless they are already present.
// A traceparent is only forwarded, never invented.
func Inject(ctx context.Context, h nethttp.Header) {
	if h.Get(HeaderXRequestID) == "" {
		h.Set(HeaderXRequestID, EnsureID(ctx))
	}
	if tp, ok := ParentFromContext(ctx); ok && h.Get(HeaderTraceParent) == "" {
		h.Set(HeaderTraceParent, tp)
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil || allZero(b) {
		// all-zero IDs are invalid per W3C
		b[n-1] = 0x01
	}
	return hex.EncodeToString(b)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
