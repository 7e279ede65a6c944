package models

// RetrievalHit is one ranked piece of evidence returned for a query.
type RetrievalHit struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
	AgentID string  `json:"agent_id"`
}

// Sources returns the distinct sources of hits in rank order.
func Sources(hits []RetrievalHit) []string {
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Source == "" || seen[h.Source] {
			continue
		}
		seen[h.Source] = true
		out = append(out, h.Source)
	}
	return out
}
