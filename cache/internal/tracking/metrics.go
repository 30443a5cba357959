// Package tracking records OpenTelemetry metrics for cache operations.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	cacheMeterName = "escribo-web/cache"

	metricCacheOperationDuration = "cache.operation.duration" // Histogram in seconds
	metricCacheHit               = "cache.hit"
	metricCacheMiss              = "cache.miss"

	attrCacheSystem    = "cache.system"
	attrCacheOperation = "cache.operation"
	attrCacheKeyspace  = "cache.keyspace"
	attrCacheHitStatus = "cache.hit"
	attrErrorType      = "error.type"
)

// Operation names
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpHealth = "ping"
	OpLoad   = "load"
)

var (
	cacheMeter    metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	cacheOperationDuration metric.Float64Histogram
	cacheHitCounter        metric.Int64Counter
	cacheMissCounter       metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize cache metric %s: %v\n", metricName, err)
	}
}

func initCacheMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if cacheMeter != nil {
		return
	}
	cacheMeter = otel.Meter(cacheMeterName)

	var err error
	cacheOperationDuration, err = cacheMeter.Float64Histogram(
		metricCacheOperationDuration,
		metric.WithDescription("Duration of cache operations"),
		metric.WithUnit("s"),
	)
	logMetricError(metricCacheOperationDuration, err)

	cacheHitCounter, err = cacheMeter.Int64Counter(
		metricCacheHit,
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	logMetricError(metricCacheHit, err)

	cacheMissCounter, err = cacheMeter.Int64Counter(
		metricCacheMiss,
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	logMetricError(metricCacheMiss, err)

	metricsInited = true
}

// RecordCacheOperation records the duration of one backend operation and, for
// lookups, whether it hit. keyspace groups keys by resource ("garment", "profile").
func RecordCacheOperation(ctx context.Context, system, operation string, duration time.Duration, hit bool, err error, keyspace string) {
	meterOnce.Do(initCacheMeter)

	attrs := []attribute.KeyValue{
		attribute.String(attrCacheSystem, system),
		attribute.String(attrCacheOperation, operation),
	}
	if keyspace != "" {
		attrs = append(attrs, attribute.String(attrCacheKeyspace, keyspace))
	}
	lookup := operation == OpGet
	if lookup {
		attrs = append(attrs, attribute.Bool(attrCacheHitStatus, hit))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, classifyError(err)))
	}

	if cacheOperationDuration != nil {
		cacheOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if !lookup {
		return
	}
	counter := cacheMissCounter
	if hit {
		counter = cacheHitCounter
	}
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Keyspace returns the prefix of key up to the first colon.
func Keyspace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return ""
}

func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection"):
		return "connection_error"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "closed"):
		return "closed"
	default:
		return "other"
	}
}

// IsInitialized reports whether the cache meter has been created.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting drops the cached instruments so a test meter provider is picked up.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	cacheMeter = nil
	cacheOperationDuration = nil
	cacheHitCounter = nil
	cacheMissCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
