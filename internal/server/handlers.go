package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/progress"
	"github.com/hyperjump/mentoria/internal/search"
	"github.com/hyperjump/mentoria/internal/storage"
	"github.com/hyperjump/mentoria/internal/tutor"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
}

type chatResponse struct {
	Reply    string                  `json:"reply"`
	Agent    string                  `json:"agent"`
	State    string                  `json:"state"`
	Sources  []string                `json:"sources"`
	Progress *models.ProgressSummary `json:"progress"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	s.logger.Debug("chat request", zap.String("session", req.SessionID), zap.String("agent", req.AgentID))
	out, err := s.tutor.Chat(r.Context(), tutor.ChatInput{
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		Message:   req.Message,
	})
	if err != nil {
		s.respondServiceError(w, "chat failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, chatResponse{
		Reply:    out.Reply,
		Agent:    out.AgentID,
		State:    out.SessionID,
		Sources:  out.Sources,
		Progress: out.Progress,
	})
}

type gradeRequest struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Rubric    string `json:"rubric"`
}

type gradeResponse struct {
	Assessment tutor.Assessment        `json:"assessment"`
	Progress   *models.ProgressSummary `json:"progress"`
	Sources    []string                `json:"sources"`
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.tutor.Grade(r.Context(), tutor.GradeInput{
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		Question:  req.Question,
		Answer:    req.Answer,
		Rubric:    req.Rubric,
	})
	if err != nil {
		s.respondServiceError(w, "grade failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, gradeResponse{
		Assessment: out.Assessment,
		Progress:   out.Progress,
		Sources:    out.Sources,
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID, agentID := s.ids(r.URL.Query().Get("sessionId"), r.URL.Query().Get("agentId"))
	summary, err := s.tracker.Get(r.Context(), sessionID, agentID)
	if err != nil {
		s.respondServiceError(w, "get progress failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

type awardRequest struct {
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId"`
	Amount    int            `json:"amount"`
	Reason    string         `json:"reason"`
	Payload   map[string]any `json:"payload,omitempty"`
	Gaps      []string       `json:"gaps,omitempty"`
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID, agentID := s.ids(req.SessionID, req.AgentID)
	summary, err := s.tracker.Award(r.Context(), sessionID, agentID, progress.AwardInput{
		Amount:  req.Amount,
		Reason:  req.Reason,
		Payload: req.Payload,
		Gaps:    req.Gaps,
	})
	if err != nil {
		s.respondServiceError(w, "award failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

type eventRequest struct {
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID, agentID := s.ids(req.SessionID, req.AgentID)
	ev, err := s.tracker.Log(r.Context(), sessionID, agentID, req.Type, req.Payload)
	if err != nil {
		s.respondServiceError(w, "log event failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, ev)
}

type retrieverResponse struct {
	Query string                `json:"query"`
	K     int                   `json:"k"`
	Agent string                `json:"agent"`
	Hits  []models.RetrievalHit `json:"hits"`
}

func (s *Server) handleDebugRetriever(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{Query: q.Get("q"), AgentID: q.Get("agentId")}
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		query.K = k
	}
	for _, key := range models.FilterKeys {
		if q.Has(key) {
			if query.Filters == nil {
				query.Filters = make(map[string]string)
			}
			query.Filters[key] = q.Get(key)
		}
	}
	if err := query.Validate(s.config.Search.MaxK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, query.AgentID = s.ids("", query.AgentID)

	hits, err := s.engine.Search(r.Context(), query.Query, query.K, query.AgentID, query.Filters)
	if err != nil {
		s.respondServiceError(w, "retrieval failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, retrieverResponse{
		Query: query.Query,
		K:     s.engine.EffectiveK(query.K, query.AgentID),
		Agent: query.AgentID,
		Hits:  hits,
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"agents":  s.agents.All(),
		"default": s.agents.Default(),
	})
}

type agentUpdateRequest struct {
	AgentID string             `json:"agentId"`
	Config  config.AgentConfig `json:"config"`
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("agent config update request", zap.String("agent", req.AgentID))
	if err := s.agents.Update(req.AgentID, req.Config); err != nil {
		s.respondServiceError(w, "agent update failed", err)
		return
	}
	if s.configPath != "" && s.config != nil {
		s.configMu.Lock()
		s.config.Agents = s.agents.All()
		err := config.Save(s.configPath, s.config)
		s.configMu.Unlock()
		if err != nil {
			s.logger.Warn("failed to persist agent config", zap.Error(err))
		}
	}
	updated, _ := s.agents.Resolve(req.AgentID)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"agentId": req.AgentID,
		"config":  updated,
		"status":  "updated",
	})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusCreated, map[string]string{"sessionId": uuid.New().String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	progressCount, err := s.storage.CountProgress(ctx)
	if err != nil {
		s.logger.Error("status: count progress failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	eventCount, err := s.storage.CountEvents(ctx)
	if err != nil {
		s.logger.Error("status: count events failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"version":        s.version,
		"progress":       progressCount,
		"events":         eventCount,
		"loaded_corpora": s.engine.Corpora(),
		"agents":         s.agents.IDs(),
	}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"completion_provider":  s.config.Completion.Provider,
			"index_type":           s.config.Storage.IndexType,
			"index_dir":            s.config.Storage.IndexDir,
			"database_path":        s.config.Storage.DatabasePath,
			"default_agent":        s.config.DefaultAgent,
		}
		if usage, err := storage.MeasureUsage(s.config.Storage.DatabasePath, s.config.Storage.IndexDir); err == nil {
			resp["disk_usage_bytes"] = usage.Total()
			resp["disk_usage"] = usage
		} else {
			s.logger.Warn("status: measure disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) ids(sessionID, agentID string) (string, string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = tutor.DefaultSessionID
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		agentID = s.agents.Default()
	}
	return sessionID, agentID
}

// respondServiceError maps domain errors to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tutor.ErrInvalidInput),
		errors.Is(err, progress.ErrInvalidInput),
		errors.Is(err, config.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, tutor.ErrCompletion),
		errors.Is(err, search.ErrProvider):
		status = http.StatusBadGateway
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
