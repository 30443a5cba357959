package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escribo/escribo-web/cache"
	"github.com/escribo/escribo-web/config"
	"github.com/escribo/escribo-web/logger"
)

func upstream(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/api/v1/garments/abc":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"g1","slug":"abc","status":"active","current_story":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestNewRequiresConfig(t *testing.T) {
	a, err := New(context.Background(), nil)
	assert.Nil(t, a)
	assert.Error(t, err)
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	cfg := loadConfig(t, fmt.Sprintf(`
cache:
  backend: redis
  redis:
    host: 127.0.0.1
    port: %d
    dial_timeout: 100ms
`, freePort(t)))

	a, err := New(context.Background(), cfg, WithLogger(logger.Nop()))
	assert.Nil(t, a)
	assert.ErrorContains(t, err, "failed to connect cache")
}

func TestGarmentServedThroughCache(t *testing.T) {
	var hits atomic.Int32
	api := upstream(t, &hits)
	cfg := loadConfig(t, "api:\n  base_url: "+api.URL+"\napp:\n  rate:\n    limit: 0\n")

	a, err := New(context.Background(), cfg, WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	for range 2 {
		rec := httptest.NewRecorder()
		a.Server().Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/garments/abc", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data struct {
				Slug     string `json:"slug"`
				HasStory bool   `json:"has_story"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "abc", body.Data.Slug)
		assert.False(t, body.Data.HasStory)
	}
	assert.Equal(t, int32(1), hits.Load(), "second lookup must come from the cache")
}

func TestUnknownGarmentIsNotFound(t *testing.T) {
	var hits atomic.Int32
	api := upstream(t, &hits)
	cfg := loadConfig(t, "api:\n  base_url: "+api.URL+"\n")

	a, err := New(context.Background(), cfg, WithLogger(logger.Nop()), WithCache(cache.NewMemoryCache()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	g, err := a.Escribo().GetGarment(context.Background(), "missing")
	assert.Nil(t, g)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "404 must not be retried")
}

func TestRunServesUntilCancelled(t *testing.T) {
	var hits atomic.Int32
	api := upstream(t, &hits)
	port := freePort(t)
	cfg := loadConfig(t, fmt.Sprintf(`
api:
  base_url: %s
server:
  host: 127.0.0.1
  port: %d
  shutdown_timeout: 2s
`, api.URL, port))

	a, err := New(context.Background(), cfg, WithLogger(logger.Nop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.ErrorIs(t, a.cache.Health(context.Background()), cache.ErrClosed)
}

func TestRunReportsBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	cfg := loadConfig(t, fmt.Sprintf("server:\n  host: 127.0.0.1\n  port: %d\n", l.Addr().(*net.TCPAddr).Port))
	a, err := New(context.Background(), cfg, WithLogger(logger.Nop()))
	require.NoError(t, err)

	err = a.Run(context.Background())
	assert.ErrorContains(t, err, "server error")
}
