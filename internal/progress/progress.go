package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/session"
)

// ErrNotFound is returned by stores when an aggregate does not exist.
// Read paths usually fold it into a zeroed default instead of an error.
var ErrNotFound = errors.New("progress record not found")

// ProblemProgress is the per-problem aggregate: one row per
// user×problem, updated on every completion.
type ProblemProgress struct {
	UserID        uuid.UUID `json:"userId"`
	ProblemID     string    `json:"problemId"`
	Attempts      int       `json:"attempts"`
	Mastered      bool      `json:"mastered"`
	AverageTime   float64   `json:"averageTime"`
	LastAttempted time.Time `json:"lastAttempted"`
}

// TopicProgress is the per-topic aggregate. MasteryLevel is a raw count
// of distinct problems whose latest result is a success, recounted from
// ProblemResults on every update.
type TopicProgress struct {
	UserID             uuid.UUID                     `json:"userId"`
	Topic              string                        `json:"topic"`
	TotalAttempts      int                           `json:"totalAttempts"`
	SuccessfulAttempts int                           `json:"successfulAttempts"`
	LastAttempted      time.Time                     `json:"lastAttempted"`
	AverageTime        float64                       `json:"averageTime"`
	MasteryLevel       int                           `json:"masteryLevel"`
	ProblemResults     map[string]TopicProblemResult `json:"problemResults"`
}

// TopicProblemResult is the per-problem slot inside a topic aggregate,
// holding the latest outcome and the spaced-repetition schedule.
type TopicProblemResult struct {
	LastAttempted  time.Time            `json:"lastAttempted"`
	Status         session.ResultStatus `json:"status"`
	Attempts       int                  `json:"attempts"`
	NextReviewDate time.Time            `json:"nextReviewDate"`
}

// ProblemAttempt is one entry of the append-only attempt log. Never
// mutated after creation; the sole feed for activity analytics.
type ProblemAttempt struct {
	ID           uuid.UUID            `json:"id"`
	UserID       uuid.UUID            `json:"userId"`
	ProblemID    string               `json:"problemId"`
	SessionID    string               `json:"sessionId"`
	Code         string               `json:"code,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
	TimeSpent    int                  `json:"timeSpent"`
	Status       session.ResultStatus `json:"status"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
}

// SessionHistory is one document per user×session that accumulates the
// problems worked in order.
type SessionHistory struct {
	UserID            uuid.UUID          `json:"userId"`
	SessionID         string             `json:"sessionId"`
	Timestamp         time.Time          `json:"timestamp"`
	TopicStudied      string             `json:"topicStudied"`
	ProblemsAttempted []AttemptedProblem `json:"problemsAttempted"`
}

type AttemptedProblem struct {
	ChallengeID  string    `json:"challengeId"`
	Topic        string    `json:"topic"`
	Correct      bool      `json:"correct"`
	AttemptCount int       `json:"attemptCount"`
	Timestamp    time.Time `json:"timestamp"`
	TimeSpent    int       `json:"timeSpent"`
}

// StatusBreakdown counts outcomes with a correctness verdict. Skipped
// attempts count toward totals but not the breakdown.
type StatusBreakdown struct {
	Success int `json:"success"`
	Error   int `json:"error"`
	Warning int `json:"warning"`
}

// DayActivity is one calendar-date bucket of the heatmap.
type DayActivity struct {
	TotalAttempts   int             `json:"totalAttempts"`
	TotalTimeSpent  int             `json:"totalTimeSpent"`
	StatusBreakdown StatusBreakdown `json:"statusBreakdown"`
}

// Heatmap is the activity response: per-UTC-date buckets plus global
// totals over the whole attempt history.
type Heatmap struct {
	DailyActivity          map[string]DayActivity `json:"dailyActivity"`
	TotalProblems          int                    `json:"totalProblems"`
	TotalTimeSpent         int                    `json:"totalTimeSpent"`
	OverallStatusBreakdown StatusBreakdown        `json:"overallStatusBreakdown"`
}

// ProblemStore persists per-problem aggregates.
type ProblemStore interface {
	Get(ctx context.Context, userID uuid.UUID, problemID string) (*ProblemProgress, error)
	Save(ctx context.Context, p *ProblemProgress) error
}

// TopicStore persists per-topic aggregates.
type TopicStore interface {
	Get(ctx context.Context, userID uuid.UUID, topic string) (*TopicProgress, error)
	Save(ctx context.Context, p *TopicProgress) error
}

// AttemptStore persists the append-only attempt log.
type AttemptStore interface {
	Append(ctx context.Context, a *ProblemAttempt) error
	// ListByUser returns the full log ascending by timestamp.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]ProblemAttempt, error)
	// ListByProblem returns one page of a problem's attempts, newest
	// first, plus the unpaged total.
	ListByProblem(ctx context.Context, userID uuid.UUID, problemID string, limit, offset int) ([]ProblemAttempt, int, error)
}

// HistoryStore persists session history documents.
type HistoryStore interface {
	Get(ctx context.Context, userID uuid.UUID, sessionID string) (*SessionHistory, error)
	Save(ctx context.Context, h *SessionHistory) error
	// ListByUser returns one page of the user's sessions, newest
	// first, plus the unpaged total.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]SessionHistory, int, error)
}
