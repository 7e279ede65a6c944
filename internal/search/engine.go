// Package search answers semantic retrieval queries against per-agent vector corpora.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/embedding"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/vector"
	"github.com/hyperjump/mentoria/pkg/utils"
)

// ErrProvider wraps failures and timeouts of the embedding provider.
var ErrProvider = errors.New("embedding provider error")

// CorpusLoader resolves an agent id to a loaded corpus.
type CorpusLoader interface {
	Load(ctx context.Context, agentID string) (*vector.Corpus, error)
	Cached() []string
}

// EmbedderSource returns the embedder for a model name.
type EmbedderSource interface {
	For(model string) (embedding.Embedder, error)
}

// AgentResolver returns the configuration serving an agent id.
type AgentResolver interface {
	Resolve(id string) (config.AgentConfig, bool)
}

// Options tunes the engine.
type Options struct {
	SnippetLength int
	MaxK          int
	EmbedTimeout  time.Duration
}

// Engine runs semantic search.
type Engine struct {
	corpora   CorpusLoader
	embedders EmbedderSource
	agents    AgentResolver
	opts      Options
	logger    *zap.Logger
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(corpora CorpusLoader, embedders EmbedderSource, agents AgentResolver, opts Options, logger *zap.Logger) *Engine {
	return &Engine{
		corpora:   corpora,
		embedders: embedders,
		agents:    agents,
		opts:      opts,
		logger:    utils.OrNop(logger),
	}
}

// Search embeds query with the agent's embedding model and returns up to k
// hits from the agent's corpus, best first. An empty query, or an agent with no
// usable artifact, yields no hits and no error.
func (e *Engine) Search(ctx context.Context, query string, k int, agentID string, filters map[string]string) ([]models.RetrievalHit, error) {
	agent, _ := e.agents.Resolve(agentID)
	req := prepare(query, k, agentID, agent, filters, e.opts.MaxK)
	if req.query == "" {
		return []models.RetrievalHit{}, nil
	}

	vec, err := e.embed(ctx, req)
	if err != nil {
		return nil, err
	}

	corpus, err := e.corpora.Load(ctx, agentID)
	if err != nil {
		if errors.Is(err, vector.ErrIndexNotFound) {
			return []models.RetrievalHit{}, nil
		}
		return nil, err
	}

	results, err := corpus.Index.Search(ctx, vec, req.k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]models.RetrievalHit, 0, len(results))
	for _, r := range results {
		if r.Row < 0 || r.Row >= int64(len(corpus.Chunks)) {
			continue
		}
		chunk := &corpus.Chunks[r.Row]
		if !matches(chunk, req.filters) {
			continue
		}
		hits = append(hits, models.RetrievalHit{
			ID:      chunk.ID,
			Source:  chunk.Source,
			Score:   utils.Clamp(r.Score, -1, 1),
			Snippet: utils.Prefix(chunk.Text, e.opts.SnippetLength),
			AgentID: agentID,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	e.logger.Debug("search",
		zap.String("agent", agentID),
		zap.String("corpus", corpus.Key),
		zap.Int("k", req.k),
		zap.Int("candidates", len(results)),
		zap.Int("hits", len(hits)))
	return hits, nil
}

func (e *Engine) embed(ctx context.Context, req request) ([]float32, error) {
	embedder, err := e.embedders.For(req.agent.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if e.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.EmbedTimeout)
		defer cancel()
	}
	vec, err := embedder.Embed(ctx, req.query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	// Embedders may hand out cached slices.
	out := append([]float32(nil), vec...)
	utils.NormalizeL2(out)
	return out, nil
}

// EffectiveK returns the k a Search call with these arguments would use.
func (e *Engine) EffectiveK(k int, agentID string) int {
	agent, _ := e.agents.Resolve(agentID)
	return prepare("", k, agentID, agent, nil, e.opts.MaxK).k
}

// Corpora returns the agent ids whose corpus is loaded.
func (e *Engine) Corpora() []string {
	return e.corpora.Cached()
}
