package handlers

import (
	"net/http"
	"strconv"

	"github.com/drillbench/drillbench/internal/progress"
)

// ProgressHandler handles progress and analytics endpoints
type ProgressHandler struct {
	analytics *progress.Service
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(analytics *progress.Service) *ProgressHandler {
	return &ProgressHandler{analytics: analytics}
}

// GetTopicProgress returns the caller's aggregate for one topic. A topic
// never practiced yields a zeroed aggregate, not a 404.
func (h *ProgressHandler) GetTopicProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	tp, err := h.analytics.GetTopicProgress(r.Context(), userID, r.PathValue("topic"))
	if err != nil {
		InternalError(w, r, "failed to load topic progress", err)
		return
	}

	WriteJSON(w, http.StatusOK, tp)
}

// GetProblemHistory returns a page of the caller's attempts on a problem,
// newest first
func (h *ProgressHandler) GetProblemHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	page, limit := pageParams(r)
	history, err := h.analytics.GetProblemHistory(r.Context(), userID, r.PathValue("problemId"), page, limit)
	if err != nil {
		InternalError(w, r, "failed to load problem history", err)
		return
	}

	WriteJSON(w, http.StatusOK, history)
}

// GetSessionHistory returns a page of the caller's past sessions, newest
// first
func (h *ProgressHandler) GetSessionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	page, limit := pageParams(r)
	history, err := h.analytics.GetSessionHistory(r.Context(), userID, page, limit)
	if err != nil {
		InternalError(w, r, "failed to load session history", err)
		return
	}

	WriteJSON(w, http.StatusOK, history)
}

// GetHeatmap returns the caller's full activity heatmap
func (h *ProgressHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		Unauthorized(w, r, "authentication required")
		return
	}

	heatmap, err := h.analytics.GetHeatmap(r.Context(), userID)
	if err != nil {
		InternalError(w, r, "failed to build heatmap", err)
		return
	}

	WriteJSON(w, http.StatusOK, heatmap)
}

// pageParams reads 1-based page/limit query parameters. Invalid or
// absent values fall back to the service defaults.
func pageParams(r *http.Request) (page, limit int) {
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	return page, limit
}
