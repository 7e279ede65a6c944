package search

import (
	"strings"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/models"
)

// request is a search call after agent defaults are applied.
type request struct {
	query   string
	k       int
	agentID string
	agent   config.AgentConfig
	filters map[string]string
}

// prepare resolves k and filters against the agent configuration. A k of zero
// or less selects the agent's rag_k. nil filters select the agent's filters;
// a non-nil map, even an empty one, replaces them.
func prepare(query string, k int, agentID string, agent config.AgentConfig, filters map[string]string, maxK int) request {
	if k <= 0 {
		k = agent.RagK
	}
	if k <= 0 {
		k = 1
	}
	if maxK > 0 && k > maxK {
		k = maxK
	}
	if filters == nil {
		filters = agent.Filters
	}
	return request{
		query:   strings.TrimSpace(query),
		k:       k,
		agentID: agentID,
		agent:   agent,
		filters: filters,
	}
}

// matches reports whether chunk satisfies every filter. Each value must be a
// substring of the named field; an empty value matches anything. Unknown keys
// never match.
func matches(chunk *models.DocumentChunk, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := chunk.Field(key)
		if !ok {
			return false
		}
		if want != "" && !strings.Contains(got, want) {
			return false
		}
	}
	return true
}
