package tutor

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var errNoJSON = errors.New("no JSON object in reply")

// Assessment is the structured result of grading one answer.
type Assessment struct {
	Score        int      `json:"score"`
	Feedback     string   `json:"feedback"`
	XPAwarded    int      `json:"xp_awarded"`
	RemedialTask string   `json:"remedial_task"`
	Gaps         []string `json:"gaps"`
	Strengths    []string `json:"strengths"`
	// ModelXPAwarded is the xp the model itself proposed. It is logged, never awarded.
	ModelXPAwarded int `json:"-"`
}

type rawAssessment struct {
	Score        any      `json:"score"`
	XPAwarded    any      `json:"xp_awarded"`
	Feedback     string   `json:"feedback"`
	RemedialTask string   `json:"remedial_task"`
	Gaps         []string `json:"gaps"`
	Strengths    []string `json:"strengths"`
}

// parseAssessment extracts the assessment JSON from a model reply. Markdown
// code fences and surrounding prose are ignored. The score is clamped to 0..100.
func parseAssessment(reply string) (Assessment, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Assessment{}, errNoJSON
	}
	var raw rawAssessment
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Assessment{}, err
	}
	return Assessment{
		Score:          boundedInt(raw.Score, 0, 100),
		Feedback:       raw.Feedback,
		RemedialTask:   raw.RemedialTask,
		Gaps:           raw.Gaps,
		Strengths:      raw.Strengths,
		ModelXPAwarded: boundedInt(raw.XPAwarded, 0, math.MaxInt32),
	}, nil
}

// boundedInt reads a JSON number or numeric string, rounds it and clamps it to
// [lo, hi] before converting. Missing or non-numeric values yield lo.
func boundedInt(v any, lo, hi int) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return lo
		}
		f = parsed
	default:
		return lo
	}
	if math.IsNaN(f) {
		return lo
	}
	f = math.Round(f)
	if f <= float64(lo) {
		return lo
	}
	if f >= float64(hi) {
		return hi
	}
	return int(f)
}
