// Package tutor orchestrates chat and grading turns: retrieval, completion,
// event logging and XP awards.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/llm"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/progress"
	"github.com/hyperjump/mentoria/pkg/utils"
)

// DefaultSessionID is used when a request carries no session id.
const DefaultSessionID = "default"

var (
	// ErrInvalidInput is returned for requests missing required fields.
	ErrInvalidInput = errors.New("invalid tutor request")
	// ErrCompletion wraps language model failures and timeouts.
	ErrCompletion = errors.New("completion failed")
)

// Retriever finds evidence for a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int, agentID string, filters map[string]string) ([]models.RetrievalHit, error)
}

// Agents resolves agent configuration.
type Agents interface {
	Resolve(id string) (config.AgentConfig, bool)
	Default() string
}

// Options tunes the service.
type Options struct {
	CompletionTimeout time.Duration
	// ChatXP is awarded per chat turn; zero or negative disables it.
	ChatXP int
}

// Service runs tutoring turns.
type Service struct {
	retriever Retriever
	completer llm.Completer
	tracker   *progress.Tracker
	agents    Agents
	opts      Options
	logger    *zap.Logger
}

// NewService creates a tutoring service.
func NewService(retriever Retriever, completer llm.Completer, tracker *progress.Tracker, agents Agents, opts Options, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		completer: completer,
		tracker:   tracker,
		agents:    agents,
		opts:      opts,
		logger:    utils.OrNop(logger),
	}
}

// ChatInput is one learner message.
type ChatInput struct {
	SessionID string
	AgentID   string
	Message   string
}

// ChatOutput is the reply to a chat turn.
type ChatOutput struct {
	Reply     string
	SessionID string
	AgentID   string
	Sources   []string
	Hits      []models.RetrievalHit
	Progress  *models.ProgressSummary
}

// GradeInput is one answer to assess.
type GradeInput struct {
	SessionID string
	AgentID   string
	Question  string
	Answer    string
	Rubric    string
}

// GradeOutput is the result of a grading turn.
type GradeOutput struct {
	Assessment Assessment
	SessionID  string
	AgentID    string
	Sources    []string
	Progress   *models.ProgressSummary
}

// Chat answers a learner message with the agent's model, grounding the reply
// on retrieved evidence when the agent has tools enabled.
func (s *Service) Chat(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	sessionID, agentID := s.ids(in.SessionID, in.AgentID)
	agent, _ := s.agents.Resolve(agentID)

	var hits []models.RetrievalHit
	if agent.Tools() {
		hits = s.evidence(ctx, in.Message, agentID)
	}
	sources := models.Sources(hits)

	reply, err := s.complete(ctx, llm.Request{
		Model:       agent.Model,
		System:      chatSystemPrompt(agent.SystemPrompt, hits),
		Messages:    []llm.Message{{Role: "user", Content: in.Message}},
		Temperature: agent.TemperatureOrDefault(),
		MaxTokens:   agent.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.tracker.Log(ctx, sessionID, agentID, models.EventChat, map[string]any{
		"message": in.Message,
		"reply":   reply,
		"sources": sources,
	}); err != nil {
		return nil, err
	}

	summary, err := s.chatProgress(ctx, sessionID, agentID)
	if err != nil {
		return nil, err
	}
	return &ChatOutput{
		Reply:     reply,
		SessionID: sessionID,
		AgentID:   agentID,
		Sources:   sources,
		Hits:      hits,
		Progress:  summary,
	}, nil
}

// Grade assesses an answer and awards XP according to the score.
func (s *Service) Grade(ctx context.Context, in GradeInput) (*GradeOutput, error) {
	if strings.TrimSpace(in.Question) == "" || strings.TrimSpace(in.Answer) == "" {
		return nil, fmt.Errorf("%w: question and answer are required", ErrInvalidInput)
	}
	sessionID, agentID := s.ids(in.SessionID, in.AgentID)
	agent, _ := s.agents.Resolve(agentID)

	hits := s.evidence(ctx, in.Question, agentID)
	sources := models.Sources(hits)

	reply, err := s.complete(ctx, llm.Request{
		Model:       agent.Model,
		System:      assessmentPrompt,
		Messages:    []llm.Message{{Role: "user", Content: gradeUserPrompt(in, hits)}},
		Temperature: agent.TemperatureOrDefault(),
		MaxTokens:   agent.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	assessment, err := parseAssessment(reply)
	if err != nil {
		s.logger.Warn("unparseable assessment, scoring as zero",
			zap.String("session", sessionID), zap.String("agent", agentID), zap.Error(err))
		assessment = Assessment{Feedback: strings.TrimSpace(reply)}
	}
	assessment.XPAwarded = s.tracker.Rules().GradeXP(assessment.Score)

	if _, err := s.tracker.Log(ctx, sessionID, agentID, models.EventGrade, map[string]any{
		"question":         in.Question,
		"score":            assessment.Score,
		"feedback":         assessment.Feedback,
		"xp_awarded":       assessment.XPAwarded,
		"model_xp_awarded": assessment.ModelXPAwarded,
		"remedial_task":    assessment.RemedialTask,
		"gaps":             assessment.Gaps,
		"strengths":        assessment.Strengths,
		"sources":          sources,
	}); err != nil {
		return nil, err
	}

	summary, err := s.tracker.Award(ctx, sessionID, agentID, progress.AwardInput{
		Amount:  assessment.XPAwarded,
		Reason:  models.EventGrade,
		Payload: map[string]any{"score": assessment.Score},
		Gaps:    assessment.Gaps,
	})
	if err != nil {
		return nil, err
	}
	return &GradeOutput{
		Assessment: assessment,
		SessionID:  sessionID,
		AgentID:    agentID,
		Sources:    sources,
		Progress:   summary,
	}, nil
}

func (s *Service) ids(sessionID, agentID string) (string, string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		agentID = s.agents.Default()
	}
	return sessionID, agentID
}

// evidence retrieves hits best-effort. Failures are logged and yield none.
func (s *Service) evidence(ctx context.Context, query, agentID string) []models.RetrievalHit {
	if s.retriever == nil {
		return nil
	}
	hits, err := s.retriever.Search(ctx, query, 0, agentID, nil)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without sources",
			zap.String("agent", agentID), zap.Error(err))
		return nil
	}
	return hits
}

func (s *Service) complete(ctx context.Context, req llm.Request) (string, error) {
	if s.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CompletionTimeout)
		defer cancel()
	}
	reply, err := s.completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	return reply, nil
}

func (s *Service) chatProgress(ctx context.Context, sessionID, agentID string) (*models.ProgressSummary, error) {
	if s.opts.ChatXP <= 0 {
		return s.tracker.Get(ctx, sessionID, agentID)
	}
	return s.tracker.Award(ctx, sessionID, agentID, progress.AwardInput{
		Amount: s.opts.ChatXP,
		Reason: models.EventChat,
	})
}
