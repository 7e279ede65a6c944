package models

import (
	"fmt"
	"sort"
	"strings"
)

// Filterable chunk fields.
const (
	FilterSource  = "source"
	FilterSubject = "subject"
	FilterID      = "id"
	FilterText    = "text"
)

// FilterKeys lists every key accepted in a filter map.
var FilterKeys = []string{FilterSource, FilterSubject, FilterID, FilterText}

// ValidateFilters rejects filter maps with keys outside FilterKeys.
func ValidateFilters(filters map[string]string) error {
	var unknown []string
	for key := range filters {
		if !isFilterKey(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown filter keys: %s (supported: %s)",
		strings.Join(unknown, ", "), strings.Join(FilterKeys, ", "))
}

func isFilterKey(key string) bool {
	for _, k := range FilterKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SearchQuery is a retrieval request as received over HTTP or the CLI.
type SearchQuery struct {
	Query   string            `json:"query"`
	K       int               `json:"k,omitempty"`
	AgentID string            `json:"agent_id,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Validate normalizes k against maxK and checks filter keys. An empty query is
// valid and simply yields no hits.
func (q *SearchQuery) Validate(maxK int) error {
	if q.K < 0 {
		q.K = 0
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return ValidateFilters(q.Filters)
}
