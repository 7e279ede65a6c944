package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/embedding"
	"github.com/hyperjump/mentoria/internal/llm"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/progress"
	"github.com/hyperjump/mentoria/internal/search"
	"github.com/hyperjump/mentoria/internal/storage"
	"github.com/hyperjump/mentoria/internal/tutor"
	"github.com/hyperjump/mentoria/internal/vector"
)

type stubCompleter struct {
	reply string
	err   error
}

func (c *stubCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	return c.reply, c.err
}

type testServer struct {
	handler   http.Handler
	completer *stubCompleter
	cfg       *config.Config
	cfgPath   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.Embedding.Provider = embedding.ProviderMock
	cfg.Embedding.Dimensions = 4
	cfg.Progress.ChatXP = 1
	cfg.Server.PublicDir = filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(cfg.Server.PublicDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.PublicDir, "index.html"), []byte("<h1>mentoria</h1>"), 0644))
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	chunks := []models.DocumentChunk{
		{ID: "c0", Source: "python/lacos.md", Subject: "python", Text: "for e while"},
		{ID: "c1", Source: "algoritmos/recursao.md", Subject: "algoritmos", Text: "recursão"},
		{ID: "c2", Source: "algoritmos/pilha.md", Subject: "algoritmos", Text: "pilha"},
	}
	require.NoError(t, vector.WriteArtifact(filepath.Join(cfg.Storage.IndexDir, cfg.Storage.DefaultIndex), 4, vectors, chunks))

	opener, err := vector.NewOpener(context.Background(), vector.IndexTypeMemory, vector.QdrantOptions{})
	require.NoError(t, err)
	corpora := vector.NewStore(cfg.Storage.IndexDir, cfg.Storage.DefaultIndex, opener)
	t.Cleanup(func() { _ = corpora.Close() })

	agents := config.NewAgentRegistry(cfg)
	engine := search.NewEngine(corpora, embedding.NewStaticPool(embedding.NewMockEmbedder(4)), agents,
		search.Options{SnippetLength: cfg.Search.SnippetLength, MaxK: cfg.Search.MaxK}, nil)
	rules, err := progress.NewRules(cfg.Progress)
	require.NoError(t, err)
	tracker := progress.NewTracker(store, rules)
	completer := &stubCompleter{reply: "Olá! Vamos estudar."}
	svc := tutor.NewService(engine, completer, tracker, agents, tutor.Options{ChatXP: cfg.Progress.ChatXP}, nil)

	srv := NewServer(Deps{
		Tutor:      svc,
		Engine:     engine,
		Tracker:    tracker,
		Agents:     agents,
		Storage:    store,
		Config:     cfg,
		ConfigPath: cfgPath,
		Version:    "test",
		Logger:     zap.NewNop(),
	})
	return &testServer{handler: srv.Handler(), completer: completer, cfg: cfg, cfgPath: cfgPath}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestHandleChat(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]string{
		"message": "O que é recursão?", "sessionId": "s1", "agentId": "tutor",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Olá! Vamos estudar.", resp.Reply)
	assert.Equal(t, "tutor", resp.Agent)
	assert.Equal(t, "s1", resp.State)
	assert.NotEmpty(t, resp.Sources)
	require.NotNil(t, resp.Progress)
	assert.Equal(t, 1, resp.Progress.XP)
}

func TestHandleChat_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chat", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	ts.completer.err = assert.AnError
	rec = ts.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "oi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleGrade(t *testing.T) {
	ts := newTestServer(t)
	ts.completer.reply = `{"score": 95, "feedback": "Excelente", "gaps": [], "strengths": ["precisão"]}`

	rec := ts.do(t, http.MethodPost, "/api/grade", map[string]string{
		"sessionId": "s1", "question": "Explique recursão", "answer": "Função que chama a si mesma com caso base",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp gradeResponse
	decode(t, rec, &resp)
	assert.Equal(t, 95, resp.Assessment.Score)
	assert.Equal(t, 10, resp.Assessment.XPAwarded)
	assert.Equal(t, 10, resp.Progress.XP)

	rec = ts.do(t, http.MethodPost, "/api/grade", map[string]string{"question": "q"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProgress_AwardAndGet(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/progress/award", map[string]interface{}{
		"sessionId": "s1", "agentId": "tutor", "amount": 55, "reason": "manual", "gaps": []string{"loops"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary models.ProgressSummary
	decode(t, rec, &summary)
	assert.Equal(t, 55, summary.XP)
	assert.Equal(t, 55, summary.Awarded)
	assert.Equal(t, []string{"Bronze"}, summary.Badges)

	rec = ts.do(t, http.MethodGet, "/api/progress?sessionId=s1&agentId=tutor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	decode(t, rec, &got)
	assert.Equal(t, float64(55), got["xp"])
	assert.Equal(t, []interface{}{"loops"}, got["gaps"])
	pos := got["path_position"].(map[string]interface{})
	assert.Equal(t, float64(45), pos["xpToNext"])
	assert.Len(t, got["recent_events"], 1)
}

func TestHandleProgress_DefaultsIDs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.ProgressSummary
	decode(t, rec, &summary)
	assert.Equal(t, tutor.DefaultSessionID, summary.SessionID)
	assert.Equal(t, config.AgentTutor, summary.AgentID)
}

func TestHandleLogEvent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/progress/events", map[string]interface{}{
		"sessionId": "s1", "agentId": "helper", "type": "quiz", "payload": map[string]int{"n": 3},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/progress/events", map[string]interface{}{"sessionId": "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDebugRetriever(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/debug/retriever?q=pilha&k=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp retrieverResponse
	decode(t, rec, &resp)
	assert.Equal(t, "pilha", resp.Query)
	assert.Equal(t, 2, resp.K)
	assert.Equal(t, config.AgentTutor, resp.Agent)
	assert.Len(t, resp.Hits, 2)

	rec = ts.do(t, http.MethodGet, "/api/debug/retriever?q=pilha&k=3&subject=algoritmos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	for _, h := range resp.Hits {
		assert.True(t, strings.HasPrefix(h.Source, "algoritmos/"), h.Source)
	}

	rec = ts.do(t, http.MethodGet, "/api/debug/retriever?q=", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Empty(t, resp.Hits)

	rec = ts.do(t, http.MethodGet, "/api/debug/retriever?q=pilha", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = retrieverResponse{}
	decode(t, rec, &resp)
	assert.Equal(t, 6, resp.K, "omitted k reports the agent's rag_k")

	rec = ts.do(t, http.MethodGet, "/api/debug/retriever?q=pilha&agentId=planner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = retrieverResponse{}
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.K)

	rec = ts.do(t, http.MethodGet, "/api/debug/retriever?q=x&k=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAgents(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Agents  map[string]config.AgentConfig `json:"agents"`
		Default string                        `json:"default"`
	}
	decode(t, rec, &list)
	assert.Contains(t, list.Agents, config.AgentTutor)
	assert.Equal(t, config.AgentTutor, list.Default)

	rec = ts.do(t, http.MethodPost, "/api/agents/config", map[string]interface{}{
		"agentId": "planner",
		"config":  map[string]interface{}{"name": "Planejador", "rag_k": 5, "rag_chunk_size": 600, "rag_overlap": 50, "max_tokens": 800},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved, err := config.Load(ts.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Agents["planner"].RagK)

	rec = ts.do(t, http.MethodPost, "/api/agents/config", map[string]interface{}{
		"agentId": "planner",
		"config":  map[string]interface{}{"rag_k": 5, "filters": map[string]string{"author": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNewSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	decode(t, rec, &resp)
	_, err := uuid.Parse(resp["sessionId"])
	assert.NoError(t, err)
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/progress/award", map[string]interface{}{"sessionId": "s1", "amount": 1})

	rec := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, float64(1), resp["progress"])
	assert.Equal(t, float64(1), resp["events"])
	assert.Equal(t, "test", resp["version"])
	assert.Greater(t, resp["disk_usage_bytes"].(float64), float64(0))
}

func TestStaticFiles(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mentoria")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
