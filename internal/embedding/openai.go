package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
const DefaultBatchSize = 500

var knownDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIOptions configures an OpenAIEmbedder.
type OpenAIOptions struct {
	Model      string
	Dimensions int // used when the model is not a known OpenAI embedding model
	BatchSize  int
	CacheSize  int
	Limiter    *rate.Limiter // shared across models; nil means unlimited
}

// OpenAIEmbedder embeds text with the OpenAI embeddings API. Requests are batched,
// rate limited client-side, and retried with exponential backoff on HTTP 429.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	limiter    *rate.Limiter
	cache      *QueryCache
}

// NewOpenAIEmbedder creates an embedder for one model.
func NewOpenAIEmbedder(client *openai.Client, opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	dims, ok := knownDimensions[opts.Model]
	if !ok {
		dims = opts.Dimensions
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &OpenAIEmbedder{
		client:     client,
		model:      opts.Model,
		dimensions: dims,
		batchSize:  opts.BatchSize,
		limiter:    opts.Limiter,
		cache:      NewQueryCache(opts.CacheSize),
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.cache.Fetch(ctx, text, func(ctx context.Context, text string) ([]float32, error) {
		out, err := e.embedBatchWithRetry(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", e.model, err)
		}
		return out[0], nil
	})
}

// CacheStats reports the query cache counters.
func (e *OpenAIEmbedder) CacheStats() CacheStats {
	return e.cache.Stats()
}

// EmbedBatch embeds texts in batches of at most batchSize.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		embeddings, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed %s batch %d-%d: %w", e.model, i, end, err)
		}
		for j, emb := range embeddings {
			e.cache.Store(texts[i+j], emb)
		}
		all = append(all, embeddings...)
	}
	return all, nil
}

// embedBatchWithRetry retries with exponential backoff on rate limit errors.
// Other errors are treated as permanent and fail immediately.
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	operation := func() ([][]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return nil, backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}
		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		embeddings := make([][]float32, len(data))
		for i, d := range data {
			embeddings[i] = toFloat32(d.Embedding)
		}
		return embeddings, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.RetryWithData(operation, backoff.WithContext(b, ctx))
}

// Dimensions returns the embedding dimension of the model.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the client has no resources to release.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
