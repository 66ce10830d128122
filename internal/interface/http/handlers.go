// Package http implements the REST API for the progression engine.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/devsecops-academy/progression-engine/internal/application/command"
	"github.com/devsecops-academy/progression-engine/internal/application/query"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
	"github.com/devsecops-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "DevSecOps Academy Progression API",
		"version":     "v1",
		"description": "Progression and achievement engine REST API",
		"endpoints": map[string]string{
			"health":      "/health",
			"register":    "/api/v1/users",
			"overview":    "/api/v1/users/{id}/overview",
			"leaderboard": "/api/v1/leaderboard",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics handles the metrics endpoint.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// registerUserRequest is the body for POST /api/v1/users.
type registerUserRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Difficulty string `json:"difficulty,omitempty"`
}

// handleRegisterUser handles POST /api/v1/users
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.RegisterUserHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Registration handler not configured")
		return
	}

	var req registerUserRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.RegisterUserCommand{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		Difficulty: req.Difficulty,
	}

	result, err := s.deps.RegisterUserHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleGetOverview handles GET /api/v1/users/{id}/overview
func (s *Server) handleGetOverview(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetProfileOverviewHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Overview handler not configured")
		return
	}

	q := query.GetProfileOverviewQuery{
		UserID:    userID,
		SkipCache: getQueryParamBool(r, "fresh"),
	}

	result, err := s.deps.GetProfileOverviewHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get profile overview")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// completeLessonRequest is the body for the lesson completion endpoint.
type completeLessonRequest struct {
	TimeSpentMinutes int `json:"time_spent_minutes"`
}

// handleCompleteLesson handles POST /api/v1/users/{id}/lessons/{lessonId}/complete
func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	lessonID := r.PathValue("lessonId")
	if userID == "" || lessonID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID and lesson ID are required")
		return
	}

	if s.deps.CompleteLessonHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Lesson completion handler not configured")
		return
	}

	// Body is optional: an empty body means no tracked study time.
	var req completeLessonRequest
	if r.ContentLength > 0 && !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.CompleteLessonCommand{
		UserID:           userID,
		LessonID:         lessonID,
		TimeSpentMinutes: req.TimeSpentMinutes,
	}

	result, err := s.deps.CompleteLessonHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to complete lesson")
		return
	}

	status := http.StatusOK
	if !result.AlreadyCompleted {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// recordAttemptRequest is the body for the challenge attempt endpoint.
type recordAttemptRequest struct {
	Score            int  `json:"score"`
	Passed           bool `json:"passed"`
	TimeTakenMinutes int  `json:"time_taken_minutes"`
}

// handleRecordChallengeAttempt handles POST /api/v1/users/{id}/challenges/{challengeId}/attempts
func (s *Server) handleRecordChallengeAttempt(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	challengeID := r.PathValue("challengeId")
	if userID == "" || challengeID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID and challenge ID are required")
		return
	}

	if s.deps.RecordChallengeAttemptHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Challenge attempt handler not configured")
		return
	}

	var req recordAttemptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.RecordChallengeAttemptCommand{
		UserID:           userID,
		ChallengeID:      challengeID,
		Score:            req.Score,
		Passed:           req.Passed,
		TimeTakenMinutes: req.TimeTakenMinutes,
	}

	result, err := s.deps.RecordChallengeAttemptHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to record challenge attempt")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	q := query.GetLeaderboardQuery{
		Limit:  getQueryParamInt(r, "limit", 20),
		Offset: getQueryParamInt(r, "offset", 0),
	}

	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get leaderboard")
		return
	}

	meta := &ResponseMeta{
		Page:     result.Page,
		PageSize: result.PageSize,
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps a domain error to an HTTP status and error code.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	status, code := classifyError(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error(logMsg,
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
	} else {
		s.logger.Warn(logMsg,
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
		)
	}

	message := err.Error()
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	writeJSONError(w, status, code, message)
}

// classifyError maps a domain error to an HTTP status and machine-readable code.
func classifyError(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsConcurrencyExhausted(err):
		// The write kept losing to concurrent writers. The client can retry.
		return http.StatusConflict, "concurrency_exhausted"
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusUnprocessableEntity, "invalid_state"
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}

	return true
}
