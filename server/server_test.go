package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/escribo/escribo-web/config"
	"github.com/escribo/escribo-web/escribo"
	apihttp "github.com/escribo/escribo-web/http"
	"github.com/escribo/escribo-web/logger"
	obstest "github.com/escribo/escribo-web/observability/testing"
	"github.com/escribo/escribo-web/trace"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetGarment(ctx context.Context, slug string) (*escribo.Garment, error) {
	args := m.Called(ctx, slug)
	g, _ := args.Get(0).(*escribo.Garment)
	return g, args.Error(1)
}

func (m *mockService) GetProfile(ctx context.Context, id string) (*escribo.Profile, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*escribo.Profile)
	return p, args.Error(1)
}

func (m *mockService) GenerateBatch(ctx context.Context, token string, count int) (*escribo.Batch, error) {
	args := m.Called(ctx, token, count)
	b, _ := args.Get(0).(*escribo.Batch)
	return b, args.Error(1)
}

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte("app:\n  debug: true\n  rate:\n    limit: 0\n" + yaml))
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, svc Service, opts ...Option) *Server {
	t.Helper()
	return New(testConfig(t, ""), logger.Nop(), svc, opts...)
}

func serve(s *Server, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestGetGarment(t *testing.T) {
	svc := &mockService{}
	svc.On("GetGarment", mock.Anything, "blue-shirt").Return(&escribo.Garment{
		ID:           "g1",
		Slug:         "blue-shirt",
		Status:       "active",
		CurrentStory: &escribo.Story{ID: "s1", Content: "hello"},
	}, nil).Once()

	rec := serve(newTestServer(t, svc), http.MethodGet, "/api/garments/blue-shirt", "", map[string]string{
		echo.HeaderXRequestID: "req-123",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "blue-shirt", data["slug"])
	assert.Equal(t, true, data["has_story"])
	assert.Equal(t, "req-123", resp.Meta["traceId"])
	assert.NotEmpty(t, rec.Header().Get(trace.HeaderTraceParent))
	svc.AssertExpectations(t)
}

func TestGetGarmentErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not_found", err: escribo.ErrNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "exhausted", err: &apihttp.Exhausted{Attempts: 4}, status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE"},
		{name: "cancelled", err: &apihttp.Cancelled{Attempts: 1}, status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE"},
		{name: "context_canceled", err: context.Canceled, status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE"},
		{name: "unexpected", err: errors.New("decode response: bad json"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("GetGarment", mock.Anything, "missing").Return(nil, tt.err).Once()

			rec := serve(newTestServer(t, svc), http.MethodGet, "/api/garments/missing", "", nil)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Data)
		})
	}
}

func TestGetGarmentNotFoundMessage(t *testing.T) {
	svc := &mockService{}
	svc.On("GetGarment", mock.Anything, "nope").Return(nil, escribo.ErrNotFound)

	resp := decodeResponse(t, serve(newTestServer(t, svc), http.MethodGet, "/api/garments/nope", "", nil))

	require.NotNil(t, resp.Error)
	assert.Equal(t, "garment not found", resp.Error.Message)
}

func TestGetProfile(t *testing.T) {
	svc := &mockService{}
	svc.On("GetProfile", mock.Anything, "u1").Return(&escribo.Profile{ID: "u1", Username: "ana"}, nil)
	svc.On("GetProfile", mock.Anything, "u2").Return(nil, escribo.ErrNotFound)
	s := newTestServer(t, svc)

	rec := serve(s, http.MethodGet, "/api/profiles/u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := decodeResponse(t, rec).Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ana", data["username"])

	rec = serve(s, http.MethodGet, "/api/profiles/u2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "profile not found", decodeResponse(t, rec).Error.Message)
}

func TestRequestContextCarriesCorrelation(t *testing.T) {
	const traceParent = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	svc := &mockService{}
	svc.On("GetProfile", mock.MatchedBy(func(ctx context.Context) bool {
		id, _ := trace.IDFromContext(ctx)
		tp, _ := trace.ParentFromContext(ctx)
		return id == "corr-1" && tp == traceParent
	}), "u1").Return(&escribo.Profile{ID: "u1"}, nil).Once()

	rec := serve(newTestServer(t, svc), http.MethodGet, "/api/profiles/u1", "", map[string]string{
		echo.HeaderXRequestID:   "corr-1",
		trace.HeaderTraceParent: traceParent,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, traceParent, rec.Header().Get(trace.HeaderTraceParent))
	svc.AssertExpectations(t)
}

func TestCreateBatch(t *testing.T) {
	svc := &mockService{}
	svc.On("GenerateBatch", mock.Anything, "secret", 25).Return(&escribo.Batch{
		Filename:    "escribo_batch_2026-10-14.zip",
		ContentType: "application/zip",
		Archive:     []byte("PK\x03\x04zip"),
	}, nil).Once()

	rec := serve(newTestServer(t, svc), http.MethodPost, "/api/admin/batches", `{"count":25}`, map[string]string{
		echo.HeaderAuthorization: "Bearer secret",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="escribo_batch_2026-10-14.zip"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, []byte("PK\x03\x04zip"), rec.Body.Bytes())
	svc.AssertExpectations(t)
}

func TestCreateBatchRejections(t *testing.T) {
	tests := []struct {
		name    string
		auth    string
		body    string
		status  int
		code    string
		details string
	}{
		{name: "missing_token", body: `{"count":5}`, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "basic_auth", auth: "Basic abc", body: `{"count":5}`, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "zero_count", auth: "Bearer t", body: `{"count":0}`, status: http.StatusBadRequest, code: "BAD_REQUEST", details: "validationErrors"},
		{name: "too_many", auth: "Bearer t", body: `{"count":1001}`, status: http.StatusBadRequest, code: "BAD_REQUEST", details: "validationErrors"},
		{name: "malformed_json", auth: "Bearer t", body: `{"count":`, status: http.StatusBadRequest, code: "BAD_REQUEST", details: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			headers := map[string]string{}
			if tt.auth != "" {
				headers[echo.HeaderAuthorization] = tt.auth
			}

			rec := serve(newTestServer(t, svc), http.MethodPost, "/api/admin/batches", tt.body, headers)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.details != "" {
				assert.Contains(t, resp.Error.Details, tt.details)
			}
			svc.AssertNotCalled(t, "GenerateBatch", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateBatchUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "export_rejected",
			err:    &escribo.BatchError{Step: escribo.StepExport, Err: escribo.ErrUnexpectedStatus},
			status: http.StatusBadGateway,
		},
		{
			name:   "export_exhausted",
			err:    &escribo.BatchError{Step: escribo.StepExport, Err: &apihttp.Exhausted{Attempts: 4}},
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "generate_unauthorized",
			err:    &escribo.BatchError{Step: escribo.StepGenerate, Err: apihttp.NewStatusError(http.StatusUnauthorized, nil, nil)},
			status: http.StatusUnauthorized,
		},
		{
			name:   "export_forbidden",
			err:    &escribo.BatchError{Step: escribo.StepExport, Err: apihttp.NewStatusError(http.StatusForbidden, nil, nil)},
			status: http.StatusForbidden,
		},
		{name: "invalid_count", err: escribo.ErrInvalidCount, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("GenerateBatch", mock.Anything, "t", 3).Return(nil, tt.err).Once()

			rec := serve(newTestServer(t, svc), http.MethodPost, "/api/admin/batches", `{"count":3}`, map[string]string{
				echo.HeaderAuthorization: "Bearer t",
			})

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCreateBatchRefusedUpstreamAsksForAdmin(t *testing.T) {
	svc := &mockService{}
	svc.On("GenerateBatch", mock.Anything, "t", 3).
		Return(nil, &escribo.BatchError{Step: escribo.StepGenerate, Err: apihttp.NewStatusError(http.StatusForbidden, nil, nil)}).Once()

	rec := serve(newTestServer(t, svc), http.MethodPost, "/api/admin/batches", `{"count":3}`, map[string]string{
		echo.HeaderAuthorization: "Bearer t",
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "generate step")
	assert.Contains(t, resp.Error.Message, "Ensure you are an admin")
}

func TestErrorDetailsHiddenWithoutDebug(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte("app:\n  rate:\n    limit: 0\n"))
	require.NoError(t, err)
	svc := &mockService{}
	svc.On("GetGarment", mock.Anything, "x").Return(nil, &apihttp.Exhausted{Attempts: 4})

	resp := decodeResponse(t, serve(New(cfg, logger.Nop(), svc), http.MethodGet, "/api/garments/x", "", nil))

	require.NotNil(t, resp.Error)
	assert.Empty(t, resp.Error.Details)
}

func TestHealthAndReady(t *testing.T) {
	healthy := true
	s := newTestServer(t, &mockService{}, WithReadinessCheck("cache", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("cache unreachable")
	}))

	rec := serve(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"ok"`)

	healthy = false
	rec = serve(s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache unreachable")
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(newTestServer(t, &mockService{}), http.MethodGet, "/api/nothing", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeResponse(t, rec).Error.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.App.Rate.Limit = 1
	cfg.App.Rate.Burst = 1
	svc := &mockService{}
	svc.On("GetProfile", mock.Anything, "u1").Return(&escribo.Profile{ID: "u1"}, nil)
	s := New(cfg, logger.Nop(), svc)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/api/profiles/u1", "", nil).Code)
	rec := serve(s, http.MethodGet, "/api/profiles/u1", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", decodeResponse(t, rec).Error.Code)

	// probes are exempt
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health", "", nil).Code)
}

func TestMiddlewareTimeout(t *testing.T) {
	svc := &mockService{}
	svc.On("GetGarment", mock.Anything, "slow").Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		<-ctx.Done()
	}).Return(nil, context.DeadlineExceeded)

	s := New(testConfig(t, "server:\n  middleware_timeout: 30ms\n"), logger.Nop(), svc)
	rec := serve(s, http.MethodGet, "/api/garments/slow", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPanicRecovered(t *testing.T) {
	svc := &mockService{}
	svc.On("GetGarment", mock.Anything, "boom").Run(func(mock.Arguments) {
		panic("handler blew up")
	}).Return(nil, nil)

	rec := serve(newTestServer(t, svc), http.MethodGet, "/api/garments/boom", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeResponse(t, rec).Error.Code)
}

func TestRequestSpans(t *testing.T) {
	tp := obstest.NewTestTraceProvider()
	svc := &mockService{}
	svc.On("GetProfile", mock.Anything, "u1").Return(&escribo.Profile{ID: "u1"}, nil)
	s := newTestServer(t, svc, WithTracerProvider(tp))

	serve(s, http.MethodGet, "/api/profiles/u1", "", nil)
	serve(s, http.MethodGet, "/health", "", nil)

	spans := obstest.NewSpanCollector(t, tp.Exporter)
	assert.Equal(t, 1, spans.Len())
	spans.WithAttribute("http.route", "/api/profiles/:id").AssertCount(1)
}

func TestRequestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	svc := &mockService{}
	svc.On("GetProfile", mock.Anything, "u1").Run(func(args mock.Arguments) {
		logger.RecordFetch(args.Get(0).(context.Context), 5*time.Millisecond)
	}).Return(&escribo.Profile{ID: "u1"}, nil)
	s := New(testConfig(t, ""), logger.NewWithWriter(&buf, "info", nil), svc)

	serve(s, http.MethodGet, "/api/profiles/u1", "", nil)
	serve(s, http.MethodGet, "/health", "", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "INFO", entry["result_code"])
	assert.InDelta(t, 1, entry["api_calls"], 0)
	assert.InDelta(t, float64(5*time.Millisecond), entry["api_elapsed"], 0)
	assert.Equal(t, "/api/profiles/:id", entry["http.route"])
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Bearer "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		status  int
		latency time.Duration
		err     error
		level   string
		code    string
	}{
		{status: 200, latency: time.Millisecond, level: "info", code: "INFO"},
		{status: 200, latency: 2 * time.Second, level: "info", code: "WARN"},
		{status: 404, level: "warn", code: "WARN"},
		{status: 503, level: "error", code: "ERROR"},
		{status: 0, err: errors.New("x"), level: "error", code: "ERROR"},
	}
	for _, tt := range tests {
		level, code := determineSeverity(tt.status, tt.latency, time.Second, tt.err)
		assert.Equal(t, tt.level, level, "status %d", tt.status)
		assert.Equal(t, tt.code, code, "status %d", tt.status)
	}

	assert.Equal(t, "GET /x completed in 1ms with status 2xx", createActionMessage("GET", "/x", time.Millisecond, 204))
}

func TestNormalizeRoutePath(t *testing.T) {
	assert.Equal(t, "/health", normalizeRoutePath("", "/health"))
	assert.Equal(t, "/live", normalizeRoutePath("live", "/health"))
}
