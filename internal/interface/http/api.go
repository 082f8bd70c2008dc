package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/application/command"
	"github.com/daris-app/daris-tutor-core/internal/application/query"
	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
	"github.com/daris-app/daris-tutor-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot returns basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"service": "daris-tutor-core",
		"status":  "running",
	})
}

// handleHealth runs all registered health checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady reports readiness for traffic.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"ready": true})
}

// handleLive reports process liveness. Always succeeds while serving.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"alive": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// TURN INGESTION
// ══════════════════════════════════════════════════════════════════════════════

type ingestTurnRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text"`
}

type ingestTurnResponse struct {
	CleanedText        string `json:"cleaned_text"`
	ObservationsStored int    `json:"observations_stored"`
	FragmentsDropped   int    `json:"fragments_dropped"`
}

// handleIngestTurn decodes one model turn and returns the display text.
func (s *Server) handleIngestTurn(w http.ResponseWriter, r *http.Request) {
	var req ingestTurnRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.IngestTurn.Handle(r.Context(), command.IngestTurnCommand{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Text:      req.Text,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ingestTurnResponse{
		CleanedText:        result.CleanedText,
		ObservationsStored: result.ObservationsStored,
		FragmentsDropped:   result.FragmentsDropped,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSON ANALYSIS AND REPORTS
// ══════════════════════════════════════════════════════════════════════════════

type analyzeLessonRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type analyzeLessonResponse struct {
	SessionID          string `json:"session_id"`
	UserID             string `json:"user_id"`
	PerformanceSummary string `json:"performance_summary"`
	FactsCreated       int    `json:"facts_created"`
	FactsUpdated       int    `json:"facts_updated"`
	AlreadyAnalyzed    bool   `json:"already_analyzed"`
}

// handleAnalyzeLesson closes a lesson and extracts durable facts from it.
func (s *Server) handleAnalyzeLesson(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	var req analyzeLessonRequest
	if r.ContentLength > 0 && !s.decodeBody(w, r, &req) {
		return
	}

	analysis, err := s.deps.ExtractFacts.Handle(r.Context(), command.ExtractFactsCommand{
		SessionID: sessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, analyzeLessonResponse{
		SessionID:          analysis.SessionID,
		UserID:             analysis.UserID,
		PerformanceSummary: analysis.PerformanceSummary,
		FactsCreated:       analysis.FactsCreated,
		FactsUpdated:       analysis.FactsUpdated,
		AlreadyAnalyzed:    analysis.AlreadyAnalyzed,
	})
}

// handleGetReport generates (or serves the cached) post-lesson report.
// ?fresh=true bypasses the cache.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.GenerateReport.Handle(r.Context(), query.GenerateReportQuery{
		SessionID: r.PathValue("session_id"),
		UserID:    r.URL.Query().Get("user_id"),
		Fresh:     getQueryParamBool(r, "fresh"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER FACTS
// ══════════════════════════════════════════════════════════════════════════════

type factView struct {
	ID               string    `json:"id"`
	FactType         string    `json:"fact_type"`
	FactText         string    `json:"fact_text"`
	Category         string    `json:"category"`
	FeatureKey       string    `json:"feature_key,omitempty"`
	ArabicExamples   []string  `json:"arabic_examples,omitempty"`
	ObservationCount int       `json:"observation_count"`
	SuccessCount     int       `json:"success_count"`
	FirstObserved    time.Time `json:"first_observed"`
	LastConfirmed    time.Time `json:"last_confirmed"`
}

// handleGetFacts returns the user's active facts, optionally filtered by
// ?type=struggle|strength|confusion.
func (s *Server) handleGetFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.deps.LearnerFacts.Handle(r.Context(), query.LearnerFactsQuery{
		UserID:   r.PathValue("user_id"),
		FactType: r.URL.Query().Get("type"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	views := make([]factView, 0, len(facts))
	for _, f := range facts {
		views = append(views, toFactView(f))
	}
	writeJSON(w, r, http.StatusOK, views)
}

func toFactView(f *fact.LearnerFact) factView {
	return factView{
		ID:               f.ID,
		FactType:         f.FactType.String(),
		FactText:         f.FactText,
		Category:         f.Category.String(),
		FeatureKey:       f.FeatureKey,
		ArabicExamples:   f.ArabicExamples,
		ObservationCount: f.ObservationCount,
		SuccessCount:     f.SuccessCount,
		FirstObserved:    f.FirstObserved,
		LastConfirmed:    f.LastConfirmed,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA GATE
// ══════════════════════════════════════════════════════════════════════════════

type quotaDecisionResponse struct {
	Allowed           bool      `json:"allowed"`
	Reason            string    `json:"reason,omitempty"`
	MessagesRemaining int       `json:"messages_remaining"`
	TokensRemaining   int       `json:"tokens_remaining"`
	ResetAt           time.Time `json:"reset_at"`

	// ResetsIn is the human-readable countdown the client renders in the
	// "limit reached" banner, e.g. "2d3h".
	ResetsIn string `json:"resets_in"`
}

// handleCanSend answers whether the user may send one more turn.
func (s *Server) handleCanSend(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.CanSend.Handle(r.Context(), query.CanSendQuery{
		UserID: r.PathValue("user_id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, quotaDecisionResponse{
		Allowed:           d.Allowed,
		Reason:            d.Reason,
		MessagesRemaining: d.MessagesRemaining,
		TokensRemaining:   d.TokensRemaining,
		ResetAt:           d.ResetAt,
		ResetsIn:          timeutil.HumanizeUntil(time.Now().UTC(), d.ResetAt),
	})
}

type incrementUsageRequest struct {
	Tokens           int  `json:"tokens"`
	IncrementMessage bool `json:"increment_message"`
}

type usageResponse struct {
	UserID       string    `json:"user_id"`
	Tier         string    `json:"tier"`
	MessagesUsed int       `json:"messages_used"`
	TokensUsed   int       `json:"tokens_used"`
	ResetAt      time.Time `json:"reset_at"`
}

// handleIncrementUsage records one turn's usage after the model responded.
func (s *Server) handleIncrementUsage(w http.ResponseWriter, r *http.Request) {
	var req incrementUsageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	p, err := s.deps.IncrementUsage.Handle(r.Context(), command.IncrementUsageCommand{
		UserID:           r.PathValue("user_id"),
		Tokens:           req.Tokens,
		IncrementMessage: req.IncrementMessage,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, usageResponse{
		UserID:       p.UserID.String(),
		Tier:         p.Tier.String(),
		MessagesUsed: p.MessagesUsed,
		TokensUsed:   p.TokensUsed,
		ResetAt:      p.ResetAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request_body", "Request body must be valid JSON")
		return false
	}
	return true
}

// writeDomainError maps a domain error onto an HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		writeJSONError(w, http.StatusConflict, "already_processed", err.Error())
	case shared.IsQuotaExceeded(err):
		writeJSONError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case shared.IsStoreUnavailable(err):
		s.logger.Error("store unavailable",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusServiceUnavailable, "store_unavailable", "Storage is temporarily unavailable")
	default:
		s.logger.Error("unhandled request error",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
