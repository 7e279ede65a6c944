package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/storage"
)

// ErrInvalidInput is returned for empty ids or event types.
var ErrInvalidInput = errors.New("invalid progress input")

// AwardInput describes one XP award. A nil Gaps leaves the stored gaps
// untouched; a non-nil Gaps, even empty, replaces them.
type AwardInput struct {
	Amount  int
	Reason  string
	Payload map[string]any
	Gaps    []string
}

// Tracker applies Rules to stored progress records.
type Tracker struct {
	store  storage.ProgressStorage
	rules  *Rules
	logger *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a tracker over store.
func NewTracker(store storage.ProgressStorage, rules *Rules, opts ...Option) *Tracker {
	t := &Tracker{store: store, rules: rules, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Rules returns the rules the tracker applies.
func (t *Tracker) Rules() *Rules {
	return t.rules
}

// Ensure creates a zero record for the pair if none exists.
func (t *Tracker) Ensure(ctx context.Context, sessionID, agentID string) error {
	if err := validateIDs(sessionID, agentID); err != nil {
		return err
	}
	return t.store.EnsureProgress(ctx, sessionID, agentID)
}

// Award adds max(0, in.Amount) XP, recomputes level, badges and path position,
// optionally replaces gaps, and logs an xp event, all in one transaction.
func (t *Tracker) Award(ctx context.Context, sessionID, agentID string, in AwardInput) (*models.ProgressSummary, error) {
	if err := validateIDs(sessionID, agentID); err != nil {
		return nil, err
	}
	payload := make(map[string]any, len(in.Payload)+2)
	for k, v := range in.Payload {
		payload[k] = v
	}
	payload["xp"] = in.Amount
	payload["reason"] = in.Reason
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidInput, err)
	}

	var awarded int
	row, err := t.store.UpdateProgress(ctx, sessionID, agentID, func(row *storage.ProgressRow) ([]*storage.EventRow, error) {
		current := max(0, row.XPTotal)
		next := addXP(current, in.Amount)
		awarded = next - current

		row.XPTotal = next
		row.Level = t.rules.Level(next)
		row.Badges = mustJSON(t.rules.Badges(next))
		row.PathPosition = mustJSON(t.rules.Position(next))
		if in.Gaps != nil {
			row.Gaps = mustJSON(dedupe(in.Gaps))
		}
		return []*storage.EventRow{{Type: models.EventXP, Payload: string(payloadJSON)}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("award xp: %w", err)
	}

	t.logger.Debug("awarded xp",
		zap.String("session", sessionID),
		zap.String("agent", agentID),
		zap.Int("requested", in.Amount),
		zap.Int("awarded", awarded),
		zap.Int("xp", row.XPTotal))

	summary, err := t.summarize(ctx, row)
	if err != nil {
		return nil, err
	}
	summary.Awarded = awarded
	return summary, nil
}

// addXP adds max(0, amount) to current, saturating at math.MaxInt.
func addXP(current, amount int) int {
	if amount <= 0 {
		return current
	}
	if amount > math.MaxInt-current {
		return math.MaxInt
	}
	return current + amount
}

// Get returns the summary for the pair, creating a zero record if needed.
func (t *Tracker) Get(ctx context.Context, sessionID, agentID string) (*models.ProgressSummary, error) {
	if err := t.Ensure(ctx, sessionID, agentID); err != nil {
		return nil, err
	}
	row, err := t.store.GetProgress(ctx, sessionID, agentID)
	if err != nil {
		return nil, err
	}
	return t.summarize(ctx, row)
}

// Log appends an event of the given type.
func (t *Tracker) Log(ctx context.Context, sessionID, agentID, eventType string, payload map[string]any) (*models.ProgressEvent, error) {
	if err := validateIDs(sessionID, agentID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(eventType) == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidInput, err)
	}
	ev := &storage.EventRow{SessionID: sessionID, AgentID: agentID, Type: eventType, Payload: string(data)}
	if err := t.store.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	return &models.ProgressEvent{
		ID:        ev.ID,
		SessionID: sessionID,
		AgentID:   agentID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: ev.Timestamp,
	}, nil
}

// summarize decodes a stored row. Badges and path position are a cache of
// values derived from xp; they are recomputed when blank, malformed, or stale.
func (t *Tracker) summarize(ctx context.Context, row *storage.ProgressRow) (*models.ProgressSummary, error) {
	xp := max(0, row.XPTotal)
	fields := []zap.Field{zap.String("session", row.SessionID), zap.String("agent", row.AgentID)}

	badges := ParseJSON[[]string](row.Badges, nil)
	position := ParseJSON(row.PathPosition, models.PathPosition{})
	if badges.Malformed || position.Malformed {
		t.logger.Warn("recomputing corrupt derived progress fields", fields...)
	}
	stale := row.Level != t.rules.Level(xp)
	if !badges.Ok() || len(badges.Value) == 0 || stale {
		badges.Value = t.rules.Badges(xp)
	}
	if !position.Ok() || position.Value.Label == "" || stale {
		position.Value = t.rules.Position(xp)
	}

	gaps := ParseJSON(row.Gaps, []string{})
	if gaps.Malformed {
		t.logger.Warn("discarding corrupt gaps", fields...)
	}
	if gaps.Value == nil {
		gaps.Value = []string{}
	}

	events, err := t.recent(ctx, row.SessionID, row.AgentID)
	if err != nil {
		return nil, err
	}

	return &models.ProgressSummary{
		SessionID:    row.SessionID,
		AgentID:      row.AgentID,
		XP:           xp,
		Goal:         t.rules.Goal(),
		Level:        position.Value.Level,
		Badges:       badges.Value,
		PathPosition: position.Value,
		Gaps:         gaps.Value,
		RecentEvents: events,
	}, nil
}

func (t *Tracker) recent(ctx context.Context, sessionID, agentID string) ([]models.ProgressEvent, error) {
	rows, err := t.store.RecentEvents(ctx, sessionID, agentID, t.rules.RecentEvents())
	if err != nil {
		return nil, err
	}
	events := make([]models.ProgressEvent, 0, len(rows))
	for _, r := range rows {
		payload := ParsePayload(r.Payload)
		if payload.Malformed {
			t.logger.Warn("event payload is not a JSON object", zap.Int64("event", r.ID))
		}
		events = append(events, models.ProgressEvent{
			ID:        r.ID,
			SessionID: r.SessionID,
			AgentID:   r.AgentID,
			Type:      r.Type,
			Payload:   payload.Value,
			Timestamp: r.Timestamp,
		})
	}
	return events, nil
}

func validateIDs(sessionID, agentID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(agentID) == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	return nil
}

// dedupe drops blank and repeated topics, keeping first occurrence order.
func dedupe(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		out = append(out, topic)
	}
	return out
}
