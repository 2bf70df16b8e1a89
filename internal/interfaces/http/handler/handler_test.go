package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/internal/domain/repository"
	"hephaestus-forge/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	mu        sync.Mutex
	current   entity.SessionSnapshot
	submitted []entity.GenerationRequest
	events    chan forge.Event
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{current: entity.IdleSnapshot()}
}

func (g *fakeGenerator) Submit(ctx context.Context, req entity.GenerationRequest) (entity.SessionSnapshot, error) {
	if err := req.Validate(); err != nil {
		return entity.SessionSnapshot{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current.InFlight {
		return g.current, errors.ErrGenerationInFlight
	}
	g.submitted = append(g.submitted, req)
	g.current = entity.NewGenerationSession("s-new", req, "python -u sample_stage1.py").Snapshot()
	return g.current, nil
}

func (g *fakeGenerator) Snapshot(ctx context.Context) (entity.SessionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, nil
}

func (g *fakeGenerator) Cancel(ctx context.Context) (entity.SessionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.current.InFlight {
		return g.current, errors.ErrNoActiveGeneration
	}
	g.current.InFlight = false
	g.current.Status = entity.SessionStatusFailed
	g.current.Error = "generation cancelled"
	return g.current, nil
}

func (g *fakeGenerator) Wait(ctx context.Context, id string) (entity.SessionSnapshot, error) {
	return entity.SessionSnapshot{}, errors.ErrSessionNotFound
}

func (g *fakeGenerator) Subscribe(ctx context.Context) (<-chan forge.Event, func(), error) {
	return g.events, func() {}, nil
}

func (g *fakeGenerator) set(snap entity.SessionSnapshot) {
	g.mu.Lock()
	g.current = snap
	g.mu.Unlock()
}

type fakeSessionRepo struct {
	sessions map[string]*entity.SessionSnapshot
	order    []string
}

func (r *fakeSessionRepo) Save(ctx context.Context, snap *entity.SessionSnapshot) error {
	if r.sessions == nil {
		r.sessions = map[string]*entity.SessionSnapshot{}
	}
	r.sessions[snap.ID] = snap
	r.order = append([]string{snap.ID}, r.order...)
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*entity.SessionSnapshot, error) {
	return r.sessions[id], nil
}

func (r *fakeSessionRepo) ListRecent(ctx context.Context, p repository.Pagination) (*repository.PagedResult[*entity.SessionSnapshot], error) {
	var items []*entity.SessionSnapshot
	for i := p.Offset(); i < len(r.order) && len(items) < p.Limit(); i++ {
		items = append(items, r.sessions[r.order[i]])
	}
	return repository.NewPagedResult(items, int64(len(r.order)), p), nil
}

type fakePublisher struct {
	req       entity.GenerationRequest
	requestID string
}

func (p *fakePublisher) PublishJob(ctx context.Context, req entity.GenerationRequest, requestID string) (string, string, error) {
	p.req = req
	p.requestID = requestID
	return "job-1", "1-0", nil
}

func testOptions(root string) forge.Options {
	opts := forge.DefaultOptions()
	opts.ProjectRoot = root
	return opts
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Total int `json:"total"`
	} `json:"meta"`
	Error *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
}

func perform(t *testing.T, engine *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func newGenerationEngine(gen forge.Generator, pub JobPublisher) *gin.Engine {
	h := NewGenerationHandler(gen, testOptions("."), pub)
	engine := gin.New()
	engine.POST("/v1/generations", h.Submit)
	engine.POST("/v1/generations/preview", h.Preview)
	engine.POST("/v1/generations/queue", h.Enqueue)
	return engine
}

func TestGenerationHandler_SubmitMergesDefaults(t *testing.T) {
	gen := newFakeGenerator()
	engine := newGenerationEngine(gen, nil)

	w, env := perform(t, engine, http.MethodPost, "/v1/generations", `{"prompt":"a brass lantern","steps":50}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, gen.submitted, 1)
	got := gen.submitted[0]
	assert.Equal(t, "a brass lantern", got.Prompt)
	assert.Equal(t, 50, got.Steps)
	assert.Equal(t, entity.SamplerDDIM, got.Sampler)
	assert.Equal(t, 7.5, got.CFGScale)
	assert.True(t, got.GenerateVideo)

	var snap entity.SessionSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "s-new", snap.ID)
	assert.Equal(t, entity.SessionStatusRunning, snap.Status)
	assert.Equal(t, 0.0, snap.Progress)
}

func TestGenerationHandler_SubmitEmptyBodyUsesDefaults(t *testing.T) {
	gen := newFakeGenerator()
	engine := newGenerationEngine(gen, nil)

	w, _ := perform(t, engine, http.MethodPost, "/v1/generations", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, gen.submitted, 1)
	assert.Equal(t, entity.DefaultGenerationRequest(), gen.submitted[0])
}

func TestGenerationHandler_SubmitRejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		running  bool
		wantCode int
		wantErr  errors.ErrorCode
	}{
		{name: "malformed json", body: `{"prompt":`, wantCode: http.StatusBadRequest, wantErr: errors.CodeInvalidParam},
		{name: "out of range", body: `{"steps":5}`, wantCode: http.StatusBadRequest, wantErr: errors.CodeInvalidParam},
		{name: "empty prompt", body: `{"prompt":"  "}`, wantCode: http.StatusBadRequest, wantErr: errors.CodeInvalidParam},
		{name: "in flight", body: `{}`, running: true, wantCode: http.StatusConflict, wantErr: errors.CodeGenerationInFlight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newFakeGenerator()
			if tt.running {
				gen.set(entity.NewGenerationSession("s-1", entity.DefaultGenerationRequest(), "cmd").Snapshot())
			}
			engine := newGenerationEngine(gen, nil)

			w, env := perform(t, engine, http.MethodPost, "/v1/generations", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantErr), env.Error.ErrorCode)
		})
	}
}

func TestGenerationHandler_Preview(t *testing.T) {
	engine := newGenerationEngine(newFakeGenerator(), nil)

	w, env := perform(t, engine, http.MethodPost, "/v1/generations/preview", `{"prompt":"a red car","seed":42,"refine":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var preview struct {
		Argv    []string `json:"argv"`
		Display string   `json:"display"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Contains(t, preview.Argv, "--seed")
	assert.Contains(t, preview.Argv, "--refine")
	assert.Contains(t, preview.Display, `--text "a red car"`)
}

func TestGenerationHandler_Enqueue(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		engine := newGenerationEngine(newFakeGenerator(), nil)
		w, _ := perform(t, engine, http.MethodPost, "/v1/generations/queue", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("invalid request not enqueued", func(t *testing.T) {
		pub := &fakePublisher{}
		engine := newGenerationEngine(newFakeGenerator(), pub)
		w, _ := perform(t, engine, http.MethodPost, "/v1/generations/queue", `{"samples":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, pub.req.Prompt)
	})

	t.Run("accepted", func(t *testing.T) {
		pub := &fakePublisher{}
		engine := newGenerationEngine(newFakeGenerator(), pub)
		w, env := perform(t, engine, http.MethodPost, "/v1/generations/queue", `{"prompt":"a teapot"}`)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "a teapot", pub.req.Prompt)

		var resp struct {
			JobID     string `json:"job_id"`
			MessageID string `json:"message_id"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, "job-1", resp.JobID)
		assert.Equal(t, "1-0", resp.MessageID)
	})
}

func newSessionEngine(gen forge.Generator, repo repository.SessionRepository, root string) *gin.Engine {
	h := NewSessionHandler(gen, repo, testOptions(root))
	engine := gin.New()
	engine.GET("/v1/session", h.GetCurrent)
	engine.DELETE("/v1/session", h.Cancel)
	engine.GET("/v1/session/files", h.GetFile)
	engine.GET("/v1/sessions", h.ListSessions)
	engine.GET("/v1/sessions/:id", h.GetSession)
	return engine
}

func TestSessionHandler_GetCurrent(t *testing.T) {
	gen := newFakeGenerator()
	engine := newSessionEngine(gen, nil, t.TempDir())

	w, env := perform(t, engine, http.MethodGet, "/v1/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap entity.SessionSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, entity.SessionStatusIdle, snap.Status)
	assert.Empty(t, snap.OutputFiles)

	gen.set(entity.NewGenerationSession("s-1", entity.DefaultGenerationRequest(), "python -u x.py").Snapshot())
	_, env = perform(t, engine, http.MethodGet, "/v1/session?transcript=false", "")
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "s-1", snap.ID)
	assert.Empty(t, snap.Transcript)
}

func TestSessionHandler_Cancel(t *testing.T) {
	gen := newFakeGenerator()
	engine := newSessionEngine(gen, nil, t.TempDir())

	w, env := perform(t, engine, http.MethodDelete, "/v1/session", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.CodeNoActiveGeneration), env.Error.ErrorCode)

	gen.set(entity.NewGenerationSession("s-1", entity.DefaultGenerationRequest(), "cmd").Snapshot())
	w, env = perform(t, engine, http.MethodDelete, "/v1/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap entity.SessionSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, entity.SessionStatusFailed, snap.Status)
}

func TestSessionHandler_GetSession(t *testing.T) {
	gen := newFakeGenerator()
	gen.set(entity.NewGenerationSession("current", entity.DefaultGenerationRequest(), "cmd").Snapshot())

	repo := &fakeSessionRepo{}
	past := entity.SessionSnapshot{ID: "past", Status: entity.SessionStatusCompleted, Progress: 1, OutputFiles: []string{}}
	require.NoError(t, repo.Save(context.Background(), &past))

	engine := newSessionEngine(gen, repo, t.TempDir())

	w, env := perform(t, engine, http.MethodGet, "/v1/sessions/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap entity.SessionSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, entity.SessionStatusRunning, snap.Status)

	w, env = perform(t, engine, http.MethodGet, "/v1/sessions/past", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, entity.SessionStatusCompleted, snap.Status)

	w, env = perform(t, engine, http.MethodGet, "/v1/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.CodeSessionNotFound), env.Error.ErrorCode)

	withoutRepo := newSessionEngine(gen, nil, t.TempDir())
	w, _ = perform(t, withoutRepo, http.MethodGet, "/v1/sessions/past", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_ListSessions(t *testing.T) {
	gen := newFakeGenerator()

	w, _ := perform(t, newSessionEngine(gen, nil, t.TempDir()), http.MethodGet, "/v1/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	repo := &fakeSessionRepo{}
	for _, id := range []string{"a", "b", "c"} {
		snap := entity.SessionSnapshot{ID: id, Status: entity.SessionStatusCompleted, Transcript: "log " + id, OutputFiles: []string{}}
		require.NoError(t, repo.Save(context.Background(), &snap))
	}

	w, env := perform(t, newSessionEngine(gen, repo, t.TempDir()), http.MethodGet, "/v1/sessions?page=1&page_size=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 3, env.Meta.Total)

	var list struct {
		Sessions []entity.SessionSnapshot `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, "c", list.Sessions[0].ID)
	assert.Empty(t, list.Sessions[0].Transcript)
}

func TestSessionHandler_GetFile(t *testing.T) {
	root := t.TempDir()
	rel := "results/default/stage1/out.ply"
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("ply\n"), 0o644))

	gen := newFakeGenerator()
	snap := entity.SessionSnapshot{
		ID:          "s-1",
		Status:      entity.SessionStatusCompleted,
		OutputFiles: []string{rel, "results/default/stage2/missing.glb"},
	}
	gen.set(snap)
	engine := newSessionEngine(gen, nil, root)

	w, _ := perform(t, engine, http.MethodGet, "/v1/session/files?path="+rel, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ply\n", w.Body.String())

	w, _ = perform(t, engine, http.MethodGet, "/v1/session/files?path="+rel+"&download=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "out.ply")

	w, _ = perform(t, engine, http.MethodGet, "/v1/session/files", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, engine, http.MethodGet, "/v1/session/files?path=/etc/passwd", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(t, engine, http.MethodGet, "/v1/session/files?path=results/default/stage2/missing.glb", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamHandler_StreamSession(t *testing.T) {
	gen := newFakeGenerator()
	gen.events = make(chan forge.Event, 4)
	idle := entity.IdleSnapshot()
	gen.events <- forge.Event{Type: forge.EventSnapshot, Snapshot: &idle}
	gen.events <- forge.Event{Type: forge.EventLog, SessionID: "s-1", Text: "Sampler: DDIM\n"}
	gen.events <- forge.Event{Type: forge.EventDone, SessionID: "s-1", Progress: 1}

	h := NewStreamHandler(gen)
	engine := gin.New()
	engine.GET("/v1/session/stream", h.StreamSession)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/session/stream?until_done=true", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"snapshot", "log", "done"}, events)
}

type fakeLoop struct {
	done chan struct{}
}

func (l fakeLoop) Done() <-chan struct{} { return l.done }

func TestHealthHandler_Ready(t *testing.T) {
	loop := fakeLoop{done: make(chan struct{})}
	h := NewHealthHandler(loop, nil, "test")
	engine := gin.New()
	engine.GET("/ready", h.Ready)
	engine.GET("/health", h.Health)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Checks["orchestrator"].Status)
	assert.Equal(t, "disabled", resp.Checks["redis"].Status)

	close(loop.done)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)
}
