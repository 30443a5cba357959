package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/escribo/escribo-web/trace"
)

const (
	// HeaderXRequestID is the correlation header forwarded on outbound calls
	HeaderXRequestID = trace.HeaderXRequestID
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = trace.HeaderTraceParent
)

// Doer executes a single HTTP round trip. *net/http.Client satisfies it.
type Doer interface {
	Do(req *nethttp.Request) (*nethttp.Response, error)
}

// Client is the base-URL aware API client built on top of a Fetcher.
type Client interface {
	Get(ctx context.Context, path string, req *Request, opts ...FetchOption) (*Response, error)
	Post(ctx context.Context, path string, req *Request, opts ...FetchOption) (*Response, error)
	Do(ctx context.Context, method, path string, req *Request, opts ...FetchOption) (*Response, error)
}

// Request holds the transport options of a call. It is sent unchanged on
// every attempt; an empty Method means GET.
type Request struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// Response is a resolved outcome: a 2xx or a 404.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats
}

// NotFound reports whether the resource is absent upstream.
func (r *Response) NotFound() bool {
	return r.StatusCode == nethttp.StatusNotFound
}

// Stats describes how the response was obtained.
type Stats struct {
	ElapsedTime time.Duration
	Attempts    int
}

// RequestInterceptor is called on every attempt before the request is sent.
// An error aborts the call without retrying.
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// Sleeper suspends the caller for d, returning early with an error when ctx
// is done. Tests substitute it to observe and skip backoff delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// NewTraceIDInterceptor forwards the correlation ID and traceparent from ctx.
func NewTraceIDInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *nethttp.Request) error {
		trace.Inject(ctx, req.Header)
		return nil
	}
}
