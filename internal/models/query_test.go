package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		maxK    int
		wantK   int
		wantErr bool
	}{
		{"empty query is valid", &SearchQuery{Query: ""}, 50, 0, false},
		{"keeps k", &SearchQuery{Query: "x", K: 3}, 50, 3, false},
		{"negative k becomes default", &SearchQuery{Query: "x", K: -1}, 50, 0, false},
		{"caps k", &SearchQuery{Query: "x", K: 200}, 50, 50, false},
		{"known filters", &SearchQuery{Query: "x", Filters: map[string]string{"source": "a", "subject": "b"}}, 50, 0, false},
		{"unknown filter", &SearchQuery{Query: "x", Filters: map[string]string{"author": "a"}}, 50, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(tt.maxK)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.K != tt.wantK {
				t.Errorf("K = %d, want %d", tt.query.K, tt.wantK)
			}
		})
	}
}

func TestDocumentChunk_Field(t *testing.T) {
	c := &DocumentChunk{ID: "c1", Source: "aula.md", Text: "frações", Subject: "matemática"}
	for key, want := range map[string]string{"id": "c1", "source": "aula.md", "text": "frações", "subject": "matemática"} {
		got, ok := c.Field(key)
		if !ok || got != want {
			t.Errorf("Field(%q) = %q, %v", key, got, ok)
		}
	}
	if _, ok := c.Field("author"); ok {
		t.Error("unknown field should not be found")
	}
}
