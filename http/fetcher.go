package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/escribo/escribo-web/logger"
)

const instrumentationName = "github.com/escribo/escribo-web/http"

// Fetcher performs an HTTP request and retries transient failures with
// exponential backoff. It holds no per-call state, so one Fetcher may serve
// any number of concurrent calls.
type Fetcher struct {
	doer         Doer
	policy       Policy
	sleep        Sleeper
	random       func() float64
	interceptors []RequestInterceptor
	logger       logger.Logger
	tracer       oteltrace.Tracer
	attempts     metric.Int64Counter
	retries      metric.Int64Counter
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	doer           Doer
	policy         Policy
	sleep          Sleeper
	random         func() float64
	interceptors   []RequestInterceptor
	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithDoer replaces the transport. The default is a *net/http.Client without a
// client-level timeout; use Policy.AttemptTimeout to bound attempts.
func WithDoer(d Doer) FetcherOption {
	return func(o *fetcherOptions) {
		if d != nil {
			o.doer = d
		}
	}
}

// WithPolicy sets the default policy for every call.
func WithPolicy(p Policy) FetcherOption {
	return func(o *fetcherOptions) { o.policy = p }
}

// WithSleeper replaces the backoff suspension.
func WithSleeper(s Sleeper) FetcherOption {
	return func(o *fetcherOptions) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithRandom replaces the jitter source; it must return values in [0, 1).
func WithRandom(r func() float64) FetcherOption {
	return func(o *fetcherOptions) {
		if r != nil {
			o.random = r
		}
	}
}

// WithInterceptor appends a request interceptor.
func WithInterceptor(i RequestInterceptor) FetcherOption {
	return func(o *fetcherOptions) { o.interceptors = append(o.interceptors, i) }
}

// WithTracerProvider sets the provider used for fetch spans.
func WithTracerProvider(tp oteltrace.TracerProvider) FetcherOption {
	return func(o *fetcherOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets the provider used for attempt counters.
func WithMeterProvider(mp metric.MeterProvider) FetcherOption {
	return func(o *fetcherOptions) { o.meterProvider = mp }
}

// NewFetcher creates a Fetcher with DefaultPolicy unless overridden.
func NewFetcher(log logger.Logger, opts ...FetcherOption) *Fetcher {
	o := fetcherOptions{
		doer:   &nethttp.Client{},
		policy: DefaultPolicy(),
		sleep:  timerSleep,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if log == nil {
		log = logger.Nop()
	}

	meter := o.meterProvider.Meter(instrumentationName)
	attempts, err := meter.Int64Counter("escribo.fetch.attempts",
		metric.WithDescription("Outbound HTTP attempts, including retries"))
	if err != nil {
		attempts = metricnoop.Int64Counter{}
	}
	retries, err := meter.Int64Counter("escribo.fetch.retries",
		metric.WithDescription("Outbound HTTP retries scheduled after a retryable failure"))
	if err != nil {
		retries = metricnoop.Int64Counter{}
	}

	return &Fetcher{
		doer:         o.doer,
		policy:       o.policy,
		sleep:        o.sleep,
		random:       o.random,
		interceptors: o.interceptors,
		logger:       log,
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		attempts:     attempts,
		retries:      retries,
	}
}

// FetchOption overrides the policy for a single call.
type FetchOption func(*Policy)

// WithRetries overrides MaxRetries for one call.
func WithRetries(n int) FetchOption {
	return func(p *Policy) { p.MaxRetries = n }
}

// WithBackoff overrides InitialBackoff for one call.
func WithBackoff(d time.Duration) FetchOption {
	return func(p *Policy) { p.InitialBackoff = d }
}

// WithAttemptTimeout overrides AttemptTimeout for one call.
func WithAttemptTimeout(d time.Duration) FetchOption {
	return func(p *Policy) { p.AttemptTimeout = d }
}

// Policy returns the default policy of the fetcher.
func (f *Fetcher) Policy() Policy {
	return f.policy
}

// Fetch sends req to url until the response is resolved (2xx or 404) or the
// retry budget is spent.
//
// A response with any other status, a transport fault, a body read failure or
// an attempt timeout is retryable. After MaxRetries retries the last fault is
// returned wrapped in *Exhausted. When ctx is done, during an attempt or
// a backoff delay, the chain stops with *Cancelled.
func (f *Fetcher) Fetch(ctx context.Context, url string, req *Request, opts ...FetchOption) (*Response, error) {
	if req == nil {
		req = &Request{}
	}
	policy := f.policy
	for _, opt := range opts {
		opt(&policy)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = nethttp.MethodGet
	}
	if err := validateTarget(ctx, method, url); err != nil {
		return nil, err
	}

	ctx, span := f.tracer.Start(ctx, "escribo.fetch "+method,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
			attribute.Int("escribo.fetch.max_retries", policy.MaxRetries),
		))
	defer span.End()

	start := time.Now()
	defer func() { logger.RecordFetch(ctx, time.Since(start)) }()

	attrs := metric.WithAttributes(attribute.String("http.request.method", method))
	delays := newBackoff(policy, f.random)
	remaining := policy.MaxRetries
	var last error

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, f.cancelled(ctx, span, attempt-1, last)
		}

		f.attempts.Add(ctx, 1, attrs)
		f.logger.Debug().
			Str("direction", "outbound").
			Str("method", method).
			Str("url", url).
			Int("attempt", attempt).
			Msg("Outbound attempt")

		resp, fault := f.attempt(ctx, method, url, req, policy.AttemptTimeout)
		if fault == nil {
			resp.Stats = Stats{ElapsedTime: time.Since(start), Attempts: attempt}
			span.SetAttributes(
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.Int("escribo.fetch.attempts", attempt),
			)
			f.logger.Info().
				Str("direction", "inbound").
				Str("url", url).
				Int("status", resp.StatusCode).
				Int("attempts", attempt).
				Dur("elapsed", resp.Stats.ElapsedTime).
				Msg("Outbound request resolved")
			return resp, nil
		}
		last = fault
		span.AddEvent("attempt failed", oteltrace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", fault.Error()),
		))

		if ctx.Err() != nil {
			return nil, f.cancelled(ctx, span, attempt, last)
		}
		if IsErrorType(fault, InterceptorError) {
			span.RecordError(fault)
			span.SetStatus(codes.Error, fault.Error())
			return nil, fault
		}
		if remaining == 0 {
			return nil, f.exhausted(span, url, attempt, last)
		}

		delay := delays.next()
		f.retries.Add(ctx, 1, attrs)
		f.logger.Warn().
			Err(fault).
			Str("url", url).
			Int("attempt", attempt).
			Int("retries_left", remaining).
			Dur("backoff", delay).
			Msg("Retrying outbound request")

		if err := f.sleep(ctx, delay); err != nil {
			return nil, f.cancelled(ctx, span, attempt, last)
		}
		remaining--
	}
}

// attempt performs one round trip. A nil error means the response is resolved.
func (f *Fetcher) attempt(ctx context.Context, method, url string, req *Request, timeout time.Duration) (*Response, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := nethttp.NewRequestWithContext(attemptCtx, method, url, body)
	if err != nil {
		return nil, NewNetworkError("failed to create HTTP request", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, intercept := range f.interceptors {
		if err := intercept(ctx, httpReq); err != nil {
			return nil, NewInterceptorError("request interceptor failed", err)
		}
	}

	httpResp, err := f.doer.Do(httpReq)
	if err != nil {
		if attemptTimedOut(ctx, attemptCtx) {
			return nil, NewTimeoutError("attempt exceeded deadline", timeout, err)
		}
		return nil, NewNetworkError("request execution failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if attemptTimedOut(ctx, attemptCtx) {
			return nil, NewTimeoutError("attempt exceeded deadline", timeout, err)
		}
		return nil, NewNetworkError("failed to read response body", err)
	}

	if !IsResolvedStatus(httpResp.StatusCode) {
		return nil, NewStatusError(httpResp.StatusCode, respBody, httpResp.Header)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
	}, nil
}

func (f *Fetcher) exhausted(span oteltrace.Span, url string, attempts int, last error) error {
	err := &Exhausted{Attempts: attempts, last: last}
	span.RecordError(err)
	span.SetStatus(codes.Error, "retries exhausted")
	span.SetAttributes(attribute.Int("escribo.fetch.attempts", attempts))
	f.logger.Error().
		Err(last).
		Str("url", url).
		Int("attempts", attempts).
		Msg("Outbound request exhausted retries")
	return err
}

func (f *Fetcher) cancelled(ctx context.Context, span oteltrace.Span, attempts int, last error) error {
	err := &Cancelled{Attempts: attempts, cause: context.Cause(ctx), last: last}
	span.SetStatus(codes.Error, "cancelled")
	span.SetAttributes(attribute.Int("escribo.fetch.attempts", attempts))
	f.logger.Debug().
		Err(err).
		Int("attempts", attempts).
		Msg("Outbound request cancelled")
	return err
}

// attemptTimedOut distinguishes the per-attempt deadline from caller cancellation.
func attemptTimedOut(parent, attemptCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
}

// validateTarget rejects targets that can never succeed so they are not retried.
func validateTarget(ctx context.Context, method, url string) error {
	if url == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	if _, err := nethttp.NewRequestWithContext(ctx, method, url, nil); err != nil {
		return NewValidationError(err.Error(), "url")
	}
	return nil
}

// timerSleep waits on a timer, returning the context cause when ctx ends first.
func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
