package models

import "time"

// Event types written to the progress log.
const (
	EventXP    = "xp"
	EventChat  = "chat"
	EventGrade = "grade"
)

// PathPosition is the learner's place on the level ladder.
type PathPosition struct {
	Level    int    `json:"level"`
	Label    string `json:"label"`
	XPToNext int    `json:"xpToNext"`
}

// ProgressEvent is one entry of the append-only event log.
type ProgressEvent struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	AgentID   string         `json:"agent_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"ts"`
}

// ProgressSummary is the learner state returned after reads and awards.
type ProgressSummary struct {
	SessionID    string          `json:"session_id"`
	AgentID      string          `json:"agent_id"`
	XP           int             `json:"xp"`
	Goal         int             `json:"goal"`
	Level        int             `json:"level"`
	Badges       []string        `json:"badges"`
	PathPosition PathPosition    `json:"path_position"`
	Gaps         []string        `json:"gaps"`
	RecentEvents []ProgressEvent `json:"recent_events"`
	Awarded      int             `json:"awarded"`
}
