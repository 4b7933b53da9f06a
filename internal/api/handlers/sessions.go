package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drillbench/drillbench/internal/session"
)

// SessionHandler handles practice session endpoints
type SessionHandler struct {
	sessions *session.Service
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Service) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create starts a new practice session over a challenge pool
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	var cfg session.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}

	sess, err := h.sessions.Create(r.Context(), userID, cfg)
	if errors.Is(err, session.ErrInvalidConfig) {
		BadRequest(w, r, err.Error())
		return
	}
	if errors.Is(err, session.ErrNoChallenges) {
		NotFound(w, r, "challenges for topic")
		return
	}
	if err != nil {
		InternalError(w, r, "failed to create session", err)
		return
	}

	WriteJSON(w, http.StatusCreated, sess)
}

// Get returns a session owned by the caller
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	sess, err := h.sessions.Get(r.Context(), userID, r.PathValue("sessionId"))
	if errors.Is(err, session.ErrNotFound) {
		NotFound(w, r, "session")
		return
	}
	if err != nil {
		InternalError(w, r, "failed to load session", err)
		return
	}

	WriteJSON(w, http.StatusOK, sess)
}

// UpdateStatusRequest carries a session lifecycle transition
type UpdateStatusRequest struct {
	Status session.Status `json:"status"`
}

// UpdateStatus pauses, resumes or completes a session
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}

	sess, err := h.sessions.UpdateStatus(r.Context(), userID, r.PathValue("sessionId"), req.Status)
	switch {
	case errors.Is(err, session.ErrNotFound):
		NotFound(w, r, "session")
		return
	case errors.Is(err, session.ErrInvalidStatus), errors.Is(err, session.ErrSessionCompleted):
		BadRequest(w, r, err.Error())
		return
	case err != nil:
		InternalError(w, r, "failed to update session", err)
		return
	}

	WriteJSON(w, http.StatusOK, sess)
}

// CompleteQuestion records one question outcome and advances the cursor
func (h *SessionHandler) CompleteQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	var result session.QuestionResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	result.QuestionID = r.PathValue("questionId")

	sess, err := h.sessions.CompleteQuestion(r.Context(), userID, r.PathValue("sessionId"), result)
	switch {
	case errors.Is(err, session.ErrNotFound):
		NotFound(w, r, "session")
		return
	case errors.Is(err, session.ErrInvalidResult), errors.Is(err, session.ErrSessionCompleted):
		BadRequest(w, r, err.Error())
		return
	case err != nil:
		InternalError(w, r, "failed to complete question", err)
		return
	}

	WriteJSON(w, http.StatusOK, sess)
}
