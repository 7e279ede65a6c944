package embedding

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// ErrNoAPIKey is returned by Pool.For when the openai provider has no API key.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY is required for the openai embedding provider")

// PoolOptions configures a Pool.
type PoolOptions struct {
	Provider          string
	DefaultModel      string
	APIKey            string
	BaseURL           string
	Dimensions        int
	BatchSize         int
	CacheSize         int
	RequestsPerSecond float64
	ONNX              ONNXOptions
}

// Pool hands out one Embedder per embedding model name. Agents configured with
// different embed models get different embedders; local providers ignore the
// model name and share a single embedder.
type Pool struct {
	opts    PoolOptions
	client  *openai.Client
	limiter *rate.Limiter
	shared  Embedder
	// unavailable fails every For call. Set when the provider cannot embed.
	unavailable error

	mu     sync.Mutex
	models map[string]Embedder
}

// NewPool creates a pool for the configured provider. A missing OpenAI key does
// not fail construction; For reports ErrNoAPIKey instead, so callers that never
// embed can still run.
func NewPool(opts PoolOptions) (*Pool, error) {
	p := &Pool{opts: opts, models: make(map[string]Embedder)}
	switch opts.Provider {
	case ProviderOpenAI, "":
		if opts.APIKey == "" {
			p.unavailable = ErrNoAPIKey
			return p, nil
		}
		reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
		client := openai.NewClient(reqOpts...)
		p.client = &client
		if opts.RequestsPerSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
		}
	case ProviderONNX:
		onnx, err := NewONNXEmbedder(opts.ONNX)
		if err != nil {
			return nil, err
		}
		p.shared = onnx
	case ProviderMock:
		p.shared = NewMockEmbedder(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, onnx, mock)", opts.Provider)
	}
	return p, nil
}

// NewStaticPool returns a pool that serves e for every model.
func NewStaticPool(e Embedder) *Pool {
	return &Pool{shared: e, models: make(map[string]Embedder)}
}

// For returns the embedder for model, creating it on first use. An empty model
// selects the pool default.
func (p *Pool) For(model string) (Embedder, error) {
	if p.unavailable != nil {
		return nil, p.unavailable
	}
	if p.shared != nil {
		return p.shared, nil
	}
	if model == "" {
		model = p.opts.DefaultModel
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.models[model]; ok {
		return e, nil
	}
	e, err := NewOpenAIEmbedder(p.client, OpenAIOptions{
		Model:      model,
		Dimensions: p.opts.Dimensions,
		BatchSize:  p.opts.BatchSize,
		CacheSize:  p.opts.CacheSize,
		Limiter:    p.limiter,
	})
	if err != nil {
		return nil, err
	}
	p.models[model] = e
	return e, nil
}

// Close closes every embedder the pool created.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.shared != nil {
		errs = append(errs, p.shared.Close())
	}
	for _, e := range p.models {
		errs = append(errs, e.Close())
	}
	p.models = make(map[string]Embedder)
	return errors.Join(errs...)
}
