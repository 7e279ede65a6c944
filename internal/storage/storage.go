// Package storage defines the persistence interface for learner progress and the event log.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a progress record does not exist.
var ErrNotFound = errors.New("progress record not found")

// ProgressRow is the stored form of a progress record. Gaps, PathPosition and
// Badges hold raw JSON text; callers decide how to recover from bad values.
type ProgressRow struct {
	SessionID    string
	AgentID      string
	XPTotal      int
	Level        int
	Topic        string
	Gaps         string
	PathPosition string
	Badges       string
	UpdatedAt    time.Time
}

// EventRow is one stored event. Payload holds raw JSON text.
type EventRow struct {
	ID        int64
	SessionID string
	AgentID   string
	Type      string
	Payload   string
	Timestamp time.Time
}

// UpdateFunc mutates row in place and returns events to append in the same transaction.
type UpdateFunc func(row *ProgressRow) ([]*EventRow, error)

// ProgressStorage defines progress and event persistence operations.
type ProgressStorage interface {
	// Progress operations
	EnsureProgress(ctx context.Context, sessionID, agentID string) error
	GetProgress(ctx context.Context, sessionID, agentID string) (*ProgressRow, error)
	// UpdateProgress creates the record if needed, then reads it, applies fn and
	// writes the result plus any returned events atomically. Concurrent updates
	// of the same record are serialized.
	UpdateProgress(ctx context.Context, sessionID, agentID string, fn UpdateFunc) (*ProgressRow, error)

	// Event operations
	AppendEvent(ctx context.Context, ev *EventRow) error
	RecentEvents(ctx context.Context, sessionID, agentID string, limit int) ([]*EventRow, error)

	// Stats
	CountProgress(ctx context.Context) (int64, error)
	CountEvents(ctx context.Context) (int64, error)

	Close() error
}
