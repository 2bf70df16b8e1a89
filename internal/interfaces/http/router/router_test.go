package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/config"
	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/internal/interfaces/http/handler"
	"hephaestus-forge/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type idleGenerator struct{}

func (idleGenerator) Submit(ctx context.Context, req entity.GenerationRequest) (entity.SessionSnapshot, error) {
	return entity.NewGenerationSession("s-1", req, "cmd").Snapshot(), nil
}

func (idleGenerator) Snapshot(ctx context.Context) (entity.SessionSnapshot, error) {
	return entity.IdleSnapshot(), nil
}

func (idleGenerator) Cancel(ctx context.Context) (entity.SessionSnapshot, error) {
	return entity.IdleSnapshot(), errors.ErrNoActiveGeneration
}

func (idleGenerator) Wait(ctx context.Context, id string) (entity.SessionSnapshot, error) {
	return entity.SessionSnapshot{}, errors.ErrSessionNotFound
}

func (idleGenerator) Subscribe(ctx context.Context) (<-chan forge.Event, func(), error) {
	return make(chan forge.Event), func() {}, nil
}

type denyAfter struct {
	allowed int
	keys    []string
}

func (d *denyAfter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	d.keys = append(d.keys, key)
	if d.allowed <= 0 {
		return false, 0, nil
	}
	d.allowed--
	return true, d.allowed, nil
}

type openLoop struct{}

func (openLoop) Done() <-chan struct{} { return nil }

func newTestRouter(t *testing.T, limiter *denyAfter) *Router {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Name = "forge-test"
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"
	cfg.Security.RateLimit.Enabled = limiter != nil
	cfg.Security.RateLimit.RequestsPerSecond = 1

	gen := idleGenerator{}
	opts := forge.DefaultOptions()
	handlers := &RouterHandlers{
		Health:     handler.NewHealthHandler(openLoop{}, nil, "test"),
		Form:       handler.NewFormHandler(),
		Generation: handler.NewGenerationHandler(gen, opts, nil),
		Session:    handler.NewSessionHandler(gen, nil, opts),
		Stream:     handler.NewStreamHandler(gen),
	}

	if limiter == nil {
		return NewWithDeps(cfg, handlers, nil)
	}
	return NewWithDeps(cfg, handlers, limiter)
}

func TestRouter_Form(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/form", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp struct {
		Data struct {
			Fields []struct {
				Name string `json:"name"`
			} `json:"fields"`
			Defaults entity.GenerationRequest `json:"defaults"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Fields)
	assert.Equal(t, "prompt", resp.Data.Fields[0].Name)
	assert.Equal(t, entity.DefaultGenerationRequest(), resp.Data.Defaults)
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hephaestus_http_requests_total")
}

func TestRouter_RateLimitOnlySubmitRoutes(t *testing.T) {
	limiter := &denyAfter{allowed: 1}
	r := newTestRouter(t, limiter)

	submit := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		r.Engine().ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, submit())
	assert.Equal(t, http.StatusTooManyRequests, submit())

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, limiter.keys, 2)
	assert.True(t, strings.HasSuffix(limiter.keys[0], ":/v1/generations"))
}

func TestRouter_CancelIdleConflict(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/session", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}
