package http

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escribo/escribo-web/logger"
	"github.com/escribo/escribo-web/trace"
)

const (
	testContentTypeHdr = "Content-Type"
	testJSONType       = "application/json"
	testAuthHdr        = "Authorization"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestBuilderDefaults(t *testing.T) {
	c := NewBuilder(logger.Nop()).Build()
	require.NotNil(t, c)

	impl, ok := c.(*client)
	require.True(t, ok)
	assert.Equal(t, DefaultPolicy(), impl.fetcher.Policy())
	assert.Len(t, impl.fetcher.interceptors, 1)
}

func TestBuilderOptions(t *testing.T) {
	c := NewBuilder(logger.Nop()).
		WithBaseURL("https://api.escribo.test/").
		WithRetries(5, time.Second).
		WithTimeout(2*time.Second).
		WithDefaultHeader("User-Agent", "escribo-web").
		WithoutTraceID().
		Build()

	impl := c.(*client)
	assert.Equal(t, "https://api.escribo.test", impl.baseURL)
	assert.Equal(t, 5, impl.fetcher.Policy().MaxRetries)
	assert.Equal(t, time.Second, impl.fetcher.Policy().InitialBackoff)
	assert.Equal(t, 2*time.Second, impl.fetcher.Policy().AttemptTimeout)
	assert.Equal(t, "escribo-web", impl.defaultHeaders["User-Agent"])
	assert.Empty(t, impl.fetcher.interceptors)
}

func TestClientResolve(t *testing.T) {
	c := &client{baseURL: "https://api.escribo.test"}

	assert.Equal(t, "https://api.escribo.test/api/v1/garments/x", c.resolve("/api/v1/garments/x"))
	assert.Equal(t, "https://api.escribo.test/api/v1/garments/x", c.resolve("api/v1/garments/x"))
	assert.Equal(t, "http://other.test/ping", c.resolve("http://other.test/ping"))

	bare := &client{}
	assert.Equal(t, "/relative", bare.resolve("/relative"))
}

func TestClientGetSendsHeaders(t *testing.T) {
	var gotPath, gotAgent, gotRequestID, gotAuth string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get(HeaderXRequestID)
		gotAuth = r.Header.Get(testAuthHdr)
		w.Header().Set(testContentTypeHdr, testJSONType)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewBuilder(logger.Nop()).
		WithBaseURL(server.URL).
		WithDefaultHeader("User-Agent", "escribo-web").
		WithDoer(server.Client()).
		Build()

	ctx := trace.WithID(context.Background(), "req-123")
	resp, err := c.Get(ctx, "/api/v1/profiles/42", &Request{
		Headers: map[string]string{testAuthHdr: BearerToken("secret")},
	})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "/api/v1/profiles/42", gotPath)
	assert.Equal(t, "escribo-web", gotAgent)
	assert.Equal(t, "req-123", gotRequestID)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestClientPostDefaultsContentType(t *testing.T) {
	var gotType, gotMethod, gotBody string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotType = r.Header.Get(testContentTypeHdr)
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(nethttp.StatusCreated)
	}))
	defer server.Close()

	c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).WithDoer(server.Client()).Build()

	resp, err := c.Post(context.Background(), "/api/v1/admin/qr/generate", &Request{Body: []byte(`{"count":3}`)})

	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, nethttp.MethodPost, gotMethod)
	assert.Equal(t, testJSONType, gotType)
	assert.Equal(t, `{"count":3}`, gotBody)
}

func TestClientRetriesThroughFetcher(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := NewBuilder(logger.Nop()).
		WithBaseURL(server.URL).
		WithDoer(server.Client()).
		WithSleeper(noSleep).
		Build()

	resp, err := c.Get(context.Background(), "/api/v1/garments/red", nil)

	require.NoError(t, err)
	assert.Equal(t, 3, resp.Stats.Attempts)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientPerCallRetryOverride(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		hits.Add(1)
		w.WriteHeader(nethttp.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).WithDoer(server.Client()).WithSleeper(noSleep).Build()

	_, err := c.Post(context.Background(), "/api/v1/admin/qr/generate", &Request{Body: []byte(`{}`)}, WithRetries(0))

	assert.True(t, IsExhausted(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestTraceIDInterceptor(t *testing.T) {
	intercept := NewTraceIDInterceptor()

	t.Run("forwards stored values", func(t *testing.T) {
		ctx := trace.WithID(context.Background(), "abc")
		ctx = trace.WithParent(ctx, "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01")
		req, _ := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, "http://x.test", nil)

		require.NoError(t, intercept(ctx, req))
		assert.Equal(t, "abc", req.Header.Get(HeaderXRequestID))
		assert.Equal(t, "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01", req.Header.Get(HeaderTraceParent))
	})

	t.Run("generates an id when absent", func(t *testing.T) {
		req, _ := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodGet, "http://x.test", nil)

		require.NoError(t, intercept(context.Background(), req))
		assert.NotEmpty(t, req.Header.Get(HeaderXRequestID))
		assert.Empty(t, req.Header.Get(HeaderTraceParent))
	})
}
