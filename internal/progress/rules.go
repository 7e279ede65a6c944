// Package progress converts scored interactions into XP, levels and badges and
// keeps the learner event log.
package progress

import (
	"fmt"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/models"
)

// Rules holds the pure XP rules. All derived values are functions of total XP.
type Rules struct {
	levelSpan    int
	xpGoal       int
	recentEvents int
	labels       []string
	badges       []config.BadgeRule
	gradeXP      []config.GradeXPRule
}

// NewRules builds rules from validated progress configuration.
func NewRules(cfg config.ProgressConfig) (*Rules, error) {
	if cfg.LevelSpan <= 0 {
		return nil, fmt.Errorf("level span must be positive, got %d", cfg.LevelSpan)
	}
	if len(cfg.LevelLabels) == 0 {
		return nil, fmt.Errorf("at least one level label is required")
	}
	for i := 1; i < len(cfg.Badges); i++ {
		if cfg.Badges[i].Threshold <= cfg.Badges[i-1].Threshold {
			return nil, fmt.Errorf("badge thresholds must be strictly ascending")
		}
	}
	recent := cfg.RecentEvents
	if recent <= 0 {
		recent = 10
	}
	return &Rules{
		levelSpan:    cfg.LevelSpan,
		xpGoal:       cfg.XPGoal,
		recentEvents: recent,
		labels:       append([]string(nil), cfg.LevelLabels...),
		badges:       append([]config.BadgeRule(nil), cfg.Badges...),
		gradeXP:      append([]config.GradeXPRule(nil), cfg.GradeXP...),
	}, nil
}

// Badges returns the name of every badge whose threshold is at most xp, in threshold order.
func (r *Rules) Badges(xp int) []string {
	out := make([]string, 0, len(r.badges))
	for _, b := range r.badges {
		if xp >= b.Threshold {
			out = append(out, b.Name)
		}
	}
	return out
}

// Level returns floor(xp/span) capped at the last label index.
func (r *Rules) Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return min(xp/r.levelSpan, len(r.labels)-1)
}

// Position returns the ladder position for xp. XPToNext is 0 at the final level.
func (r *Rules) Position(xp int) models.PathPosition {
	level := r.Level(xp)
	toNext := 0
	if level < len(r.labels)-1 {
		toNext = max(0, (level+1)*r.levelSpan-xp)
	}
	return models.PathPosition{Level: level, Label: r.labels[level], XPToNext: toNext}
}

// GradeXP maps an assessment score (clamped to 0..100) to the XP it earns.
func (r *Rules) GradeXP(score int) int {
	score = max(0, min(100, score))
	for _, rule := range r.gradeXP {
		if score >= rule.MinScore {
			return rule.XP
		}
	}
	return 0
}

// Goal returns the XP goal shown to learners.
func (r *Rules) Goal() int {
	return r.xpGoal
}

// RecentEvents returns how many events a summary carries.
func (r *Rules) RecentEvents() int {
	return r.recentEvents
}
