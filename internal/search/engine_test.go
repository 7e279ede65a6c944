package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/embedding"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/vector"
)

// fixedEmbedder maps known queries to fixed vectors and counts calls.
type fixedEmbedder struct {
	vectors map[string][]float32
	dims    int
	delay   time.Duration
	err     error
	calls   atomic.Int32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	v := make([]float32, f.dims)
	v[0] = 1
	return v, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return f.dims }
func (f *fixedEmbedder) Close() error    { return nil }

type testEnv struct {
	dir      string
	embedder *fixedEmbedder
	engine   *Engine
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	opener, err := vector.NewOpener(context.Background(), vector.IndexTypeMemory, vector.QdrantOptions{})
	if err != nil {
		t.Fatal(err)
	}
	store := vector.NewStore(dir, "default", opener)
	t.Cleanup(func() { _ = store.Close() })

	var cfg config.Config
	config.ApplyDefaults(&cfg)

	emb := &fixedEmbedder{dims: 3, vectors: map[string][]float32{
		"recursão": {0, 0, 2},
		"laços":    {2, 0, 0},
	}}
	if opts.SnippetLength == 0 {
		opts.SnippetLength = 1200
	}
	if opts.MaxK == 0 {
		opts.MaxK = 20
	}
	engine := NewEngine(store, embedding.NewStaticPool(emb), config.NewAgentRegistry(&cfg), opts, nil)
	return &testEnv{dir: dir, embedder: emb, engine: engine}
}

func (env *testEnv) writeArtifact(t *testing.T, key string, vectors [][]float32, chunks []models.DocumentChunk) {
	t.Helper()
	if err := vector.WriteArtifact(filepath.Join(env.dir, key), 3, vectors, chunks); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) writeSample(t *testing.T, key string) {
	t.Helper()
	vectors, chunks := sampleCorpus()
	env.writeArtifact(t, key, vectors, chunks)
}

func sampleCorpus() ([][]float32, []models.DocumentChunk) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.8, 0.6, 0},
		{0, 0, 1},
		{0, 0.6, 0.8},
	}
	chunks := []models.DocumentChunk{
		{ID: "c0", Source: "python/lacos.md", Subject: "python", Text: "for e while"},
		{ID: "c1", Source: "python/iteradores.md", Subject: "python", Text: "iteradores e geradores"},
		{ID: "c2", Source: "algoritmos/recursao.md", Subject: "algoritmos", Text: "função que chama a si mesma"},
		{ID: "c3", Source: "algoritmos/pilha.md", Subject: "algoritmos", Text: "pilha de chamadas"},
	}
	return vectors, chunks
}

func TestEngine_Search(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, config.AgentTutor)

	hits, err := env.engine.Search(context.Background(), "recursão", 2, config.AgentTutor, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "c2" || hits[1].ID != "c3" {
		t.Errorf("unexpected order: %s, %s", hits[0].ID, hits[1].ID)
	}
	if hits[0].Score < 0.999 || hits[0].Score > 1 {
		t.Errorf("normalized query should score ~1 against its own vector, got %f", hits[0].Score)
	}
	if hits[0].AgentID != config.AgentTutor || hits[0].Source != "algoritmos/recursao.md" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted descending at %d", i)
		}
	}
}

func TestEngine_EmptyQuerySkipsEmbedding(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, "default")

	for _, q := range []string{"", "   ", "\n\t"} {
		hits, err := env.engine.Search(context.Background(), q, 3, config.AgentTutor, nil)
		if err != nil {
			t.Fatal(err)
		}
		if hits == nil || len(hits) != 0 {
			t.Errorf("query %q: expected empty non-nil hits, got %v", q, hits)
		}
	}
	if n := env.embedder.calls.Load(); n != 0 {
		t.Errorf("embedder called %d times for empty queries", n)
	}
}

func TestEngine_MissingIndexYieldsNoHits(t *testing.T) {
	env := newTestEnv(t, Options{})

	hits, err := env.engine.Search(context.Background(), "laços", 3, config.AgentPlanner, nil)
	if err != nil {
		t.Fatalf("missing artifacts should not be an error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestEngine_FallbackIndex(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, "default")

	hits, err := env.engine.Search(context.Background(), "laços", 1, config.AgentHelper, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "c0" {
		t.Fatalf("expected fallback hit c0, got %+v", hits)
	}
	if hits[0].AgentID != config.AgentHelper {
		t.Errorf("hit should carry the requesting agent, got %q", hits[0].AgentID)
	}
}

func TestEngine_KLargerThanCorpus(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, "default")

	hits, err := env.engine.Search(context.Background(), "laços", 10, config.AgentTutor, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 4 {
		t.Errorf("expected every row once, got %d", len(hits))
	}
	seen := make(map[string]bool)
	for _, h := range hits {
		if seen[h.ID] {
			t.Errorf("duplicate hit %s", h.ID)
		}
		seen[h.ID] = true
	}
}

func TestEngine_DefaultKFromAgent(t *testing.T) {
	env := newTestEnv(t, Options{})
	vectors := make([][]float32, 10)
	chunks := make([]models.DocumentChunk, 10)
	for i := range vectors {
		vectors[i] = []float32{1, float32(i) / 10, 0}
		chunks[i] = models.DocumentChunk{ID: fmt.Sprintf("c%d", i), Source: "s", Text: "t"}
	}
	env.writeArtifact(t, "default", vectors, chunks)

	hits, err := env.engine.Search(context.Background(), "laços", 0, config.AgentPlanner, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Errorf("planner rag_k is 3, got %d hits", len(hits))
	}
}

func TestEngine_EffectiveK(t *testing.T) {
	env := newTestEnv(t, Options{MaxK: 5})
	tests := []struct {
		name  string
		k     int
		agent string
		want  int
	}{
		{"explicit", 2, config.AgentTutor, 2},
		{"agent default", 0, config.AgentPlanner, 3},
		{"negative uses agent default", -1, config.AgentPlanner, 3},
		{"capped by max_k", 0, config.AgentTutor, 5},
		{"explicit capped", 50, config.AgentHelper, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.engine.EffectiveK(tt.k, tt.agent); got != tt.want {
				t.Errorf("EffectiveK(%d, %s) = %d, want %d", tt.k, tt.agent, got, tt.want)
			}
		})
	}
}

func TestEngine_MaxK(t *testing.T) {
	env := newTestEnv(t, Options{MaxK: 2})
	env.writeSample(t, "default")

	hits, err := env.engine.Search(context.Background(), "laços", 50, config.AgentTutor, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("expected k capped at 2, got %d", len(hits))
	}
}

func TestEngine_Filters(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, "default")
	ctx := context.Background()

	tests := []struct {
		name    string
		filters map[string]string
		want    []string
	}{
		{"subject", map[string]string{"subject": "python"}, []string{"c0", "c1"}},
		{"source substring", map[string]string{"source": "pilha"}, []string{"c3"}},
		{"conjunctive", map[string]string{"subject": "algoritmos", "text": "chama"}, []string{"c2"}},
		{"empty value", map[string]string{"source": ""}, []string{"c0", "c1", "c2", "c3"}},
		{"no match", map[string]string{"id": "zz"}, nil},
		{"unknown key", map[string]string{"author": "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := env.engine.Search(ctx, "laços", 4, config.AgentTutor, tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, h := range hits {
				got = append(got, h.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_FiltersApplyAfterTopK(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, "default")

	// The two nearest rows to "laços" are python chunks; filtering them out
	// leaves nothing even though algoritmos chunks exist further down.
	hits, err := env.engine.Search(context.Background(), "laços", 2, config.AgentTutor,
		map[string]string{"subject": "algoritmos"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected filtering after the cut, got %+v", hits)
	}
}

func TestEngine_SnippetIsRunePrefix(t *testing.T) {
	env := newTestEnv(t, Options{SnippetLength: 5})
	env.writeArtifact(t, "default", [][]float32{{1, 0, 0}}, []models.DocumentChunk{
		{ID: "c0", Source: "s", Text: "ééééééééé"},
	})

	hits, err := env.engine.Search(context.Background(), "laços", 1, config.AgentTutor, nil)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Snippet != "ééééé" {
		t.Errorf("snippet = %q", hits[0].Snippet)
	}
}

func TestEngine_ScoreClamped(t *testing.T) {
	env := newTestEnv(t, Options{})
	// Unnormalized stored vectors can push raw inner products past 1.
	env.writeArtifact(t, "default", [][]float32{{5, 0, 0}, {-5, 0, 0}}, []models.DocumentChunk{
		{ID: "big", Source: "s", Text: "t"},
		{ID: "neg", Source: "s", Text: "t"},
	})

	hits, err := env.engine.Search(context.Background(), "laços", 2, config.AgentTutor, nil)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Score != 1 || hits[1].Score != -1 {
		t.Errorf("scores not clamped: %f %f", hits[0].Score, hits[1].Score)
	}
}

func TestEngine_ProviderErrors(t *testing.T) {
	env := newTestEnv(t, Options{EmbedTimeout: 20 * time.Millisecond})
	env.writeSample(t, "default")
	ctx := context.Background()

	env.embedder.err = errors.New("boom")
	_, err := env.engine.Search(ctx, "laços", 1, config.AgentTutor, nil)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}

	env.embedder.err = nil
	env.embedder.delay = time.Second
	_, err = env.engine.Search(ctx, "laços", 1, config.AgentTutor, nil)
	if !errors.Is(err, ErrProvider) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected timeout wrapped as ErrProvider, got %v", err)
	}
}

func TestEngine_MisalignedArtifact(t *testing.T) {
	env := newTestEnv(t, Options{})
	vectors, chunks := sampleCorpus()
	env.writeArtifact(t, "default", vectors, chunks[:2])

	_, err := env.engine.Search(context.Background(), "laços", 1, config.AgentTutor, nil)
	if !errors.Is(err, vector.ErrMisaligned) {
		t.Errorf("expected ErrMisaligned, got %v", err)
	}
}

func TestEngine_Corpora(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.writeSample(t, "default")

	if len(env.engine.Corpora()) != 0 {
		t.Error("nothing should be loaded yet")
	}
	if _, err := env.engine.Search(context.Background(), "laços", 1, config.AgentTutor, nil); err != nil {
		t.Fatal(err)
	}
	got := env.engine.Corpora()
	if len(got) != 1 || got[0] != config.AgentTutor {
		t.Errorf("Corpora() = %v", got)
	}
}

func TestPrepare(t *testing.T) {
	agent := config.AgentConfig{RagK: 4, Filters: map[string]string{"subject": "python"}}

	req := prepare("  q  ", 0, "tutor", agent, nil, 10)
	if req.query != "q" || req.k != 4 || req.filters["subject"] != "python" {
		t.Errorf("defaults not applied: %+v", req)
	}
	req = prepare("q", 30, "tutor", agent, map[string]string{}, 10)
	if req.k != 10 {
		t.Errorf("k not capped: %d", req.k)
	}
	if len(req.filters) != 0 {
		t.Errorf("explicit empty filters should replace defaults: %v", req.filters)
	}
}

func BenchmarkEngine_Search(b *testing.B) {
	dir := b.TempDir()
	const n, dims = 5000, 64
	vectors := make([][]float32, n)
	chunks := make([]models.DocumentChunk, n)
	for i := range vectors {
		v := make([]float32, dims)
		v[i%dims] = 1
		v[(i*7)%dims] += 0.5
		vectors[i] = v
		chunks[i] = models.DocumentChunk{ID: fmt.Sprintf("c%d", i), Source: "bench.md", Text: strings.Repeat("x", 2000)}
	}
	if err := vector.WriteArtifact(filepath.Join(dir, "default"), dims, vectors, chunks); err != nil {
		b.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "default", vector.IndexFileName)); err != nil {
		b.Fatal(err)
	}

	opener, _ := vector.NewOpener(context.Background(), vector.IndexTypeMemory, vector.QdrantOptions{})
	store := vector.NewStore(dir, "default", opener)
	defer store.Close()
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	engine := NewEngine(store, embedding.NewStaticPool(embedding.NewMockEmbedder(dims)), config.NewAgentRegistry(&cfg), Options{SnippetLength: 1200, MaxK: 20}, nil)

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Search(ctx, "benchmark query", 6, config.AgentTutor, nil); err != nil {
			b.Fatal(err)
		}
	}
}
