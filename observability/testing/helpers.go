// Package testing provides in-memory OpenTelemetry providers and assertions
// for escribo-web tests. No collector is required.
//
//	tp := NewTestTraceProvider()
//	defer tp.Shutdown(context.Background())
//
//	fetcher := http.NewFetcher(log, http.WithTracerProvider(tp))
//	...
//	NewSpanCollector(t, tp.Exporter).WithName("escribo.fetch GET").AssertCount(1)
package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const metricNotFoundErrMsg = "metric %s not found"

// TestTraceProvider wraps the SDK TracerProvider and an in-memory exporter.
type TestTraceProvider struct {
	*sdktrace.TracerProvider
	Exporter *tracetest.InMemoryExporter
}

// NewTestTraceProvider creates a TracerProvider that exports spans synchronously
// to memory.
func NewTestTraceProvider() *TestTraceProvider {
	exporter := tracetest.NewInMemoryExporter()
	return &TestTraceProvider{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		Exporter:       exporter,
	}
}

// TestMeterProvider wraps the SDK MeterProvider and a manual reader.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	Reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a MeterProvider collected on demand.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Reader:        reader,
	}
}

// Collect reads all metrics recorded so far.
func (tmp *TestMeterProvider) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tmp.Reader.Collect(context.Background(), &rm), "failed to collect metrics")
	return rm
}

// SpanCollector filters captured spans fluently.
type SpanCollector struct {
	t     *testing.T
	spans tracetest.SpanStubs
}

// NewSpanCollector snapshots the spans held by exporter.
func NewSpanCollector(t *testing.T, exporter *tracetest.InMemoryExporter) *SpanCollector {
	t.Helper()
	return &SpanCollector{t: t, spans: exporter.GetSpans()}
}

// Len returns the number of collected spans.
func (sc *SpanCollector) Len() int {
	return len(sc.spans)
}

// WithName keeps spans called name.
func (sc *SpanCollector) WithName(name string) *SpanCollector {
	filtered := make(tracetest.SpanStubs, 0, len(sc.spans))
	for i := range sc.spans {
		if sc.spans[i].Name == name {
			filtered = append(filtered, sc.spans[i])
		}
	}
	return &SpanCollector{t: sc.t, spans: filtered}
}

// WithAttribute keeps spans carrying key with the given value.
func (sc *SpanCollector) WithAttribute(key string, value any) *SpanCollector {
	filtered := make(tracetest.SpanStubs, 0, len(sc.spans))
	for i := range sc.spans {
		if v, ok := attributeValue(sc.spans[i].Attributes, key); ok && matchesValue(v, value) {
			filtered = append(filtered, sc.spans[i])
		}
	}
	return &SpanCollector{t: sc.t, spans: filtered}
}

// First returns the first span, failing the test when there is none.
func (sc *SpanCollector) First() tracetest.SpanStub {
	sc.t.Helper()
	require.NotEmpty(sc.t, sc.spans, "no spans in collection")
	return sc.spans[0]
}

// AssertCount asserts the number of collected spans.
func (sc *SpanCollector) AssertCount(expected int) *SpanCollector {
	sc.t.Helper()
	assert.Len(sc.t, sc.spans, expected, "unexpected number of spans")
	return sc
}

// AssertSpanAttribute asserts that span has key set to expected.
func AssertSpanAttribute(t *testing.T, span *tracetest.SpanStub, key string, expected any) {
	t.Helper()
	v, ok := attributeValue(span.Attributes, key)
	if !ok {
		t.Errorf("attribute %s not found in span", key)
		return
	}
	assert.True(t, matchesValue(v, expected), "attribute %s value mismatch: got %s", key, v.Emit())
}

// FindMetric returns the metric called name, or nil.
func FindMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// SumInt64 adds up every data point of an int64 counter.
func SumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := FindMetric(rm, name)
	require.NotNil(t, m, metricNotFoundErrMsg, name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T, not Sum[int64]", name, m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// HistogramCount adds up the observation counts of a float64 histogram.
func HistogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	m := FindMetric(rm, name)
	require.NotNil(t, m, metricNotFoundErrMsg, name)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "metric %s is %T, not Histogram[float64]", name, m.Data)

	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	return total
}

func attributeValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func matchesValue(attrValue attribute.Value, expected any) bool {
	switch v := expected.(type) {
	case string:
		return attrValue.AsString() == v
	case int:
		return attrValue.AsInt64() == int64(v)
	case int64:
		return attrValue.AsInt64() == v
	case float64:
		return attrValue.AsFloat64() == v
	case bool:
		return attrValue.AsBool() == v
	default:
		return false
	}
}
