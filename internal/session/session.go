package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/executor"
)

// Status is the session lifecycle state. Completed is terminal; active
// and paused convert freely into each other.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
)

// ValidStatus reports whether s names a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusCompleted, StatusPaused:
		return true
	}
	return false
}

// ResultStatus classifies the outcome of one question.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success" // passed on the first attempt
	ResultWarning ResultStatus = "warning" // passed on a later attempt
	ResultError   ResultStatus = "error"   // never passed within the attempt budget
	ResultSkipped ResultStatus = "skipped"
)

// ValidResultStatus reports whether s names a known question outcome.
func ValidResultStatus(s ResultStatus) bool {
	switch s {
	case ResultSuccess, ResultWarning, ResultError, ResultSkipped:
		return true
	}
	return false
}

// ScoreDelta returns the score contribution of one question outcome.
// Skips subtract, so a session score can go negative.
func ScoreDelta(s ResultStatus) int {
	switch s {
	case ResultSuccess:
		return 3
	case ResultWarning:
		return 1
	case ResultSkipped:
		return -1
	}
	return 0
}

// Config is the user's requested shape for a practice session.
type Config struct {
	Topic         string `json:"topic"`
	Difficulty    string `json:"difficulty,omitempty"`
	QuestionCount int    `json:"questionCount"`
}

// QuestionResult records the outcome of one question in a session.
type QuestionResult struct {
	QuestionID  string                `json:"questionId"`
	Status      ResultStatus          `json:"status"`
	Attempts    int                   `json:"attempts"`
	TimeSpent   int                   `json:"timeSpent"` // seconds
	Code        string                `json:"code,omitempty"`
	TestResults []executor.TestResult `json:"testResults,omitempty"`
}

// Session is a practice run over a snapshot of challenges. The snapshot
// is taken at creation, so challenge edits never change a session in
// flight. CurrentQuestion is the cursor into Challenges; when it
// reaches the end the session completes for good.
type Session struct {
	ID              string                    `json:"id"`
	UserID          uuid.UUID                 `json:"userId"`
	Config          Config                    `json:"config"`
	Challenges      []challenge.Challenge     `json:"challenges"`
	CurrentQuestion int                       `json:"currentQuestion"`
	Score           int                       `json:"score"`
	Status          Status                    `json:"status"`
	StartTime       time.Time                 `json:"startTime"`
	Results         map[string]QuestionResult `json:"results"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

// Completion is the fact handed to progress tracking once a question
// result is durably part of the session record.
type Completion struct {
	UserID      uuid.UUID
	SessionID   string
	Topic       string
	Result      QuestionResult
	CompletedAt time.Time
}
