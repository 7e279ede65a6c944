package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/mentoria/internal/models"
)

// AgentConfig is the per-agent configuration consumed by retrieval and chat.
type AgentConfig struct {
	Name         string            `yaml:"name" json:"name"`
	Model        string            `yaml:"model" json:"model"`
	Temperature  *float64          `yaml:"temperature,omitempty" json:"temperature"`
	MaxTokens    int               `yaml:"max_tokens" json:"max_tokens"`
	EmbedModel   string            `yaml:"embed_model" json:"embed_model"`
	RagK         int               `yaml:"rag_k" json:"rag_k"`
	RagChunkSize int               `yaml:"rag_chunk_size" json:"rag_chunk_size"`
	RagOverlap   *int              `yaml:"rag_overlap,omitempty" json:"rag_overlap"`
	Filters      map[string]string `yaml:"filters,omitempty" json:"filters,omitempty"`
	SystemPrompt string            `yaml:"system_prompt" json:"system_prompt"`
	ToolsEnabled *bool             `yaml:"tools_enabled,omitempty" json:"tools_enabled"`
}

func (a *AgentConfig) applyDefaults(id, embedModel string) {
	if a.Name == "" {
		a.Name = id
	}
	if a.Model == "" {
		a.Model = "gpt-4o-mini"
	}
	if a.Temperature == nil {
		a.Temperature = floatPtr(0.7)
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = 2000
	}
	if a.EmbedModel == "" {
		a.EmbedModel = embedModel
	}
	if a.RagK == 0 {
		a.RagK = 6
	}
	if a.RagChunkSize == 0 {
		a.RagChunkSize = 800
	}
	if a.RagOverlap == nil {
		// Small chunks cannot take the full default overlap.
		a.RagOverlap = intPtr(max(0, min(defaultRagOverlap, a.RagChunkSize-1)))
	}
	if a.ToolsEnabled == nil {
		a.ToolsEnabled = boolPtr(true)
	}
}

// Validate checks field ranges. maxK bounds rag_k when positive.
func (a *AgentConfig) Validate(maxK int) error {
	if a.RagK <= 0 {
		return fmt.Errorf("rag_k must be positive, got %d", a.RagK)
	}
	if maxK > 0 && a.RagK > maxK {
		return fmt.Errorf("rag_k %d exceeds search.max_k %d", a.RagK, maxK)
	}
	if a.RagChunkSize <= 0 {
		return fmt.Errorf("rag_chunk_size must be positive, got %d", a.RagChunkSize)
	}
	if a.RagOverlap != nil && (*a.RagOverlap < 0 || *a.RagOverlap >= a.RagChunkSize) {
		return fmt.Errorf("rag_overlap must be in [0, rag_chunk_size), got %d", *a.RagOverlap)
	}
	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %g", *a.Temperature)
	}
	if a.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", a.MaxTokens)
	}
	return models.ValidateFilters(a.Filters)
}

// TemperatureOrDefault returns the sampling temperature.
func (a *AgentConfig) TemperatureOrDefault() float64 {
	if a.Temperature == nil {
		return 0.7
	}
	return *a.Temperature
}

// Tools reports whether chat turns for this agent retrieve evidence.
func (a *AgentConfig) Tools() bool {
	return a.ToolsEnabled == nil || *a.ToolsEnabled
}

// AgentRegistry is a concurrency-safe view over agent configurations.
type AgentRegistry struct {
	mu           sync.RWMutex
	agents       map[string]AgentConfig
	defaultAgent string
	embedModel   string
	maxK         int
}

// NewAgentRegistry builds a registry from a validated config.
func NewAgentRegistry(cfg *Config) *AgentRegistry {
	agents := make(map[string]AgentConfig, len(cfg.Agents))
	for id, a := range cfg.Agents {
		agents[id] = a
	}
	return &AgentRegistry{
		agents:       agents,
		defaultAgent: cfg.DefaultAgent,
		embedModel:   cfg.Embedding.Model,
		maxK:         cfg.Search.MaxK,
	}
}

// Resolve returns the configuration for id, falling back to the default agent
// for unknown ids. The boolean reports whether id itself is configured.
func (r *AgentRegistry) Resolve(id string) (AgentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a, true
	}
	return r.agents[r.defaultAgent], false
}

// Default returns the default agent id.
func (r *AgentRegistry) Default() string {
	return r.defaultAgent
}

// IDs returns the configured agent ids, sorted.
func (r *AgentRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns a copy of every agent configuration.
func (r *AgentRegistry) All() map[string]AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]AgentConfig, len(r.agents))
	for id, a := range r.agents {
		out[id] = a
	}
	return out
}

// Update validates and stores the configuration for id, adding it if new.
func (r *AgentRegistry) Update(id string, a AgentConfig) error {
	if id == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalid)
	}
	a.applyDefaults(id, r.embedModel)
	if err := a.Validate(r.maxK); err != nil {
		return fmt.Errorf("%w: agents.%s: %v", ErrInvalid, id, err)
	}
	r.mu.Lock()
	r.agents[id] = a
	r.mu.Unlock()
	return nil
}
