package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drillbench/drillbench/internal/challenge"
)

// ChallengeHandler handles challenge endpoints
type ChallengeHandler struct {
	challenges *challenge.Service
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(challenges *challenge.Service) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges}
}

// ListTopics lists all topics that have at least one challenge
func (h *ChallengeHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.challenges.ListTopics(r.Context())
	if err != nil {
		InternalError(w, r, "failed to list topics", err)
		return
	}
	if topics == nil {
		topics = []string{}
	}

	WriteJSON(w, http.StatusOK, topics)
}

// GetByTopic lists all challenges under a topic
func (h *ChallengeHandler) GetByTopic(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	challenges, err := h.challenges.GetByTopic(r.Context(), topic)
	if err != nil {
		InternalError(w, r, "failed to list challenges", err)
		return
	}
	if len(challenges) == 0 {
		NotFound(w, r, "topic")
		return
	}

	WriteJSON(w, http.StatusOK, challenges)
}

// Get returns a single challenge without its hidden test cases
func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ch, err := h.challenges.Get(r.Context(), id)
	if errors.Is(err, challenge.ErrNotFound) {
		NotFound(w, r, "challenge")
		return
	}
	if err != nil {
		InternalError(w, r, "failed to load challenge", err)
		return
	}

	WriteJSON(w, http.StatusOK, ch)
}

// Create authors a new challenge; its id is derived from the title
func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft challenge.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}

	ch, err := h.challenges.Create(r.Context(), draft)
	if errors.Is(err, challenge.ErrInvalid) {
		BadRequest(w, r, err.Error())
		return
	}
	if err != nil {
		InternalError(w, r, "failed to create challenge", err)
		return
	}

	WriteJSON(w, http.StatusCreated, ch)
}

// Update shallow-merges the provided fields into an existing challenge
func (h *ChallengeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var upd challenge.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}

	ch, err := h.challenges.Update(r.Context(), id, upd)
	if errors.Is(err, challenge.ErrNotFound) {
		NotFound(w, r, "challenge")
		return
	}
	if errors.Is(err, challenge.ErrInvalid) {
		BadRequest(w, r, err.Error())
		return
	}
	if err != nil {
		InternalError(w, r, "failed to update challenge", err)
		return
	}

	WriteJSON(w, http.StatusOK, ch)
}

// BulkUploadRequest wraps the drafts for a bulk upload
type BulkUploadRequest struct {
	Challenges []challenge.Draft `json:"challenges"`
}

// BulkUpload ingests a batch of challenge drafts with per-item isolation
func (h *ChallengeHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	var req BulkUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if len(req.Challenges) == 0 {
		BadRequest(w, r, "challenges array is required")
		return
	}

	result, err := h.challenges.BulkUpload(r.Context(), req.Challenges)
	if err != nil {
		InternalError(w, r, "bulk upload failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
