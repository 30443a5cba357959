package logger

import (
	"context"
	"sync/atomic"
	"time"
)

type contextKey string

const (
	fetchCounterKey contextKey = "fetch_counter"
	fetchElapsedKey contextKey = "fetch_elapsed_nanos"
)

// WithFetchCounter attaches counters for outbound API calls made while serving
// one inbound request. The request logger reports them in its summary.
func WithFetchCounter(ctx context.Context) context.Context {
	var count, elapsed int64
	ctx = context.WithValue(ctx, fetchCounterKey, &count)
	return context.WithValue(ctx, fetchElapsedKey, &elapsed)
}

// RecordFetch adds one outbound call and its duration to the counters in ctx.
// It is a no-op when ctx carries no counters.
func RecordFetch(ctx context.Context, d time.Duration) {
	if c, ok := ctx.Value(fetchCounterKey).(*int64); ok && c != nil {
		atomic.AddInt64(c, 1)
	}
	if e, ok := ctx.Value(fetchElapsedKey).(*int64); ok && e != nil {
		atomic.AddInt64(e, int64(d))
	}
}

// FetchCount returns the number of outbound calls recorded in ctx.
func FetchCount(ctx context.Context) int64 {
	if c, ok := ctx.Value(fetchCounterKey).(*int64); ok && c != nil {
		return atomic.LoadInt64(c)
	}
	return 0
}

// FetchElapsed returns the total outbound call time recorded in ctx.
func FetchElapsed(ctx context.Context) time.Duration {
	if e, ok := ctx.Value(fetchElapsedKey).(*int64); ok && e != nil {
		return time.Duration(atomic.LoadInt64(e))
	}
	return 0
}
