package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/executor"
)

// ExecuteHandler handles code execution endpoints
type ExecuteHandler struct {
	executor   *executor.Service
	challenges *challenge.Service
}

// NewExecuteHandler creates a new execute handler
func NewExecuteHandler(exec *executor.Service, challenges *challenge.Service) *ExecuteHandler {
	return &ExecuteHandler{executor: exec, challenges: challenges}
}

// ExecuteRequest is the submission payload
type ExecuteRequest struct {
	Code        string `json:"code"`
	ChallengeID string `json:"challengeId"`
}

// ExecuteResponse wraps the grading report
type ExecuteResponse struct {
	Success   bool             `json:"success"`
	AllPassed bool             `json:"allPassed"`
	Results   *executor.Report `json:"results"`
}

// Execute grades submitted code against a challenge's hidden test cases
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if req.Code == "" || req.ChallengeID == "" {
		BadRequest(w, r, "code and challengeId are required")
		return
	}

	cases, err := h.challenges.GetTestCases(r.Context(), req.ChallengeID)
	if errors.Is(err, challenge.ErrNotFound) {
		NotFound(w, r, "challenge")
		return
	}
	if err != nil {
		InternalError(w, r, "failed to load test cases", err)
		return
	}
	// A challenge with nothing to grade against reads as absent.
	if len(cases) == 0 {
		NotFound(w, r, "challenge")
		return
	}

	report, err := h.executor.RunTests(r.Context(), req.Code, cases)
	if errors.Is(err, executor.ErrCodeRejected) {
		BadRequest(w, r, err.Error())
		return
	}
	if err != nil {
		InternalError(w, r, "code execution failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, ExecuteResponse{
		Success:   true,
		AllPassed: report.AllPassed,
		Results:   report,
	})
}
