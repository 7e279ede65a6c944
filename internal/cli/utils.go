// Package cli provides output helpers for the mentoria command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json" (case-insensitive).
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (use text or json)", s)
	}
}

// WriteHits writes retrieval hits to w in the given format.
func WriteHits(w io.Writer, query string, hits []models.RetrievalHit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "hits": hits})
	}
	fmt.Fprintf(w, "\nFound %d hits for %q\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d | Score: %.4f | Agent: %s\n", i+1, h.Score, h.AgentID)
		fmt.Fprintf(w, "ID: %s\n", h.ID)
		if h.Source != "" {
			fmt.Fprintf(w, "Source: %s\n", h.Source)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(h.Snippet, 200))
	}
	return nil
}

// WriteProgress writes a progress summary to w in the given format.
func WriteProgress(w io.Writer, p *models.ProgressSummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, p)
	}
	fmt.Fprintf(w, "Session: %s | Agent: %s\n", p.SessionID, p.AgentID)
	fmt.Fprintf(w, "XP: %d/%d", p.XP, p.Goal)
	if p.Awarded > 0 {
		fmt.Fprintf(w, " (+%d)", p.Awarded)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Level %d: %s", p.PathPosition.Level, p.PathPosition.Label)
	if p.PathPosition.XPToNext > 0 {
		fmt.Fprintf(w, " (%d XP to next level)", p.PathPosition.XPToNext)
	}
	fmt.Fprintln(w)
	if len(p.Badges) > 0 {
		fmt.Fprintf(w, "Badges: %s\n", strings.Join(p.Badges, ", "))
	}
	if len(p.Gaps) > 0 {
		fmt.Fprintf(w, "Gaps: %s\n", strings.Join(p.Gaps, ", "))
	}
	if len(p.RecentEvents) > 0 {
		fmt.Fprintln(w, "\nRecent events:")
		for _, ev := range p.RecentEvents {
			fmt.Fprintf(w, "  %s  %-6s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, describePayload(ev.Payload))
		}
	}
	return nil
}

func describePayload(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return Truncate(string(data), 80)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}
