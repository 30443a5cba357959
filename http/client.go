package http

import (
	"context"
	nethttp "net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/escribo/escribo-web/logger"
)

// client implements the Client interface on top of a Fetcher
type client struct {
	fetcher        *Fetcher
	baseURL        string
	defaultHeaders map[string]string
}

// Builder provides a fluent interface for configuring the API client
type Builder struct {
	logger         logger.Logger
	baseURL        string
	policy         Policy
	defaultHeaders map[string]string
	opts           []FetcherOption
	skipTraceID    bool
}

// NewBuilder creates a new client builder with DefaultPolicy
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		logger:         log,
		policy:         DefaultPolicy(),
		defaultHeaders: make(map[string]string),
	}
}

// WithBaseURL sets the URL that relative request paths are resolved against
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.baseURL = strings.TrimRight(baseURL, "/")
	return b
}

// WithPolicy replaces the retry policy
func (b *Builder) WithPolicy(p Policy) *Builder {
	b.policy = p
	return b
}

// WithRetries sets the retry budget and the first backoff delay
func (b *Builder) WithRetries(maxRetries int, initialBackoff time.Duration) *Builder {
	b.policy.MaxRetries = maxRetries
	b.policy.InitialBackoff = initialBackoff
	return b
}

// WithTimeout bounds every single attempt
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.policy.AttemptTimeout = timeout
	return b
}

// WithDefaultHeader adds a header sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.defaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.opts = append(b.opts, WithInterceptor(interceptor))
	return b
}

// WithoutTraceID disables the default X-Request-ID interceptor
func (b *Builder) WithoutTraceID() *Builder {
	b.skipTraceID = true
	return b
}

// WithDoer replaces the transport
func (b *Builder) WithDoer(d Doer) *Builder {
	b.opts = append(b.opts, WithDoer(d))
	return b
}

// WithSleeper replaces the backoff suspension
func (b *Builder) WithSleeper(s Sleeper) *Builder {
	b.opts = append(b.opts, WithSleeper(s))
	return b
}

// WithTracerProvider sets the provider for fetch spans
func (b *Builder) WithTracerProvider(tp oteltrace.TracerProvider) *Builder {
	b.opts = append(b.opts, WithTracerProvider(tp))
	return b
}

// WithMeterProvider sets the provider for fetch counters
func (b *Builder) WithMeterProvider(mp metric.MeterProvider) *Builder {
	b.opts = append(b.opts, WithMeterProvider(mp))
	return b
}

// Build creates the client with the configured options
func (b *Builder) Build() Client {
	opts := []FetcherOption{WithPolicy(b.policy)}
	if !b.skipTraceID {
		opts = append(opts, WithInterceptor(NewTraceIDInterceptor()))
	}
	opts = append(opts, b.opts...)

	headers := make(map[string]string, len(b.defaultHeaders))
	for k, v := range b.defaultHeaders {
		headers[k] = v
	}
	return &client{
		fetcher:        NewFetcher(b.logger, opts...),
		baseURL:        b.baseURL,
		defaultHeaders: headers,
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, path string, req *Request, opts ...FetchOption) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, path, req, opts...)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, path string, req *Request, opts ...FetchOption) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, path, req, opts...)
}

// Do resolves path against the base URL and fetches it
func (c *client) Do(ctx context.Context, method, path string, req *Request, opts ...FetchOption) (*Response, error) {
	out := &Request{Method: method, Headers: make(map[string]string)}
	for k, v := range c.defaultHeaders {
		out.Headers[k] = v
	}
	if req != nil {
		out.Body = req.Body
		for k, v := range req.Headers {
			out.Headers[k] = v
		}
	}
	if out.Body != nil && !hasHeader(out.Headers, "Content-Type") {
		out.Headers["Content-Type"] = "application/json"
	}
	return c.fetcher.Fetch(ctx, c.resolve(path), out, opts...)
}

func (c *client) resolve(path string) string {
	if c.baseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// BearerToken returns the Authorization header value for token.
func BearerToken(token string) string {
	return "Bearer " + token
}
