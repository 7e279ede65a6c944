// Package models defines core data structures for corpus chunks, retrieval hits, and learner progress.
package models

// DocumentChunk is one metadata record of an index artifact. The i-th record
// describes the i-th vector row of the same artifact.
type DocumentChunk struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Text    string `json:"text"`
	Subject string `json:"subject,omitempty"`
}

// Field returns the value of a filterable field by name, and false for unknown names.
func (c *DocumentChunk) Field(name string) (string, bool) {
	switch name {
	case FilterSource:
		return c.Source, true
	case FilterSubject:
		return c.Subject, true
	case FilterID:
		return c.ID, true
	case FilterText:
		return c.Text, true
	default:
		return "", false
	}
}
