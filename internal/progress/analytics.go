package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/session"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// AttemptPage is one page of a problem's attempt history.
type AttemptPage struct {
	Attempts []ProblemAttempt `json:"attempts"`
	Total    int              `json:"total"`
}

// HistoryPage is one page of a user's session history.
type HistoryPage struct {
	Sessions []SessionHistory `json:"sessions"`
	Total    int              `json:"total"`
}

// Service answers dashboard queries over the progress aggregates.
type Service struct {
	topics   TopicStore
	attempts AttemptStore
	history  HistoryStore
	logger   *slog.Logger
}

func NewService(topics TopicStore, attempts AttemptStore, history HistoryStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{topics: topics, attempts: attempts, history: history, logger: logger}
}

// GetTopicProgress returns the user's aggregate for a topic. A topic
// never practiced yields a zeroed default, not an error.
func (s *Service) GetTopicProgress(ctx context.Context, userID uuid.UUID, topic string) (*TopicProgress, error) {
	tp, err := s.topics.Get(ctx, userID, topic)
	if errors.Is(err, ErrNotFound) {
		return &TopicProgress{
			UserID:         userID,
			Topic:          topic,
			ProblemResults: make(map[string]TopicProblemResult),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load topic progress: %w", err)
	}
	if tp.ProblemResults == nil {
		tp.ProblemResults = make(map[string]TopicProblemResult)
	}
	return tp, nil
}

// GetProblemHistory returns one page of the user's attempts on a
// problem, newest first.
func (s *Service) GetProblemHistory(ctx context.Context, userID uuid.UUID, problemID string, page, limit int) (*AttemptPage, error) {
	limit, offset := pageBounds(page, limit)

	attempts, total, err := s.attempts.ListByProblem(ctx, userID, problemID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list problem attempts: %w", err)
	}
	if attempts == nil {
		attempts = []ProblemAttempt{}
	}
	return &AttemptPage{Attempts: attempts, Total: total}, nil
}

// GetSessionHistory returns one page of the user's sessions, newest
// first.
func (s *Service) GetSessionHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*HistoryPage, error) {
	limit, offset := pageBounds(page, limit)

	sessions, total, err := s.history.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list session history: %w", err)
	}
	if sessions == nil {
		sessions = []SessionHistory{}
	}
	return &HistoryPage{Sessions: sessions, Total: total}, nil
}

// GetHeatmap walks the full attempt log and buckets it by UTC calendar
// date. An empty log yields a zeroed response.
func (s *Service) GetHeatmap(ctx context.Context, userID uuid.UUID) (*Heatmap, error) {
	attempts, err := s.attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	hm := &Heatmap{DailyActivity: make(map[string]DayActivity)}
	for _, a := range attempts {
		date := a.Timestamp.UTC().Format("2006-01-02")

		dayAct := hm.DailyActivity[date]
		dayAct.TotalAttempts++
		dayAct.TotalTimeSpent += a.TimeSpent
		bumpBreakdown(&dayAct.StatusBreakdown, a.Status)
		hm.DailyActivity[date] = dayAct

		hm.TotalProblems++
		hm.TotalTimeSpent += a.TimeSpent
		bumpBreakdown(&hm.OverallStatusBreakdown, a.Status)
	}
	return hm, nil
}

func bumpBreakdown(b *StatusBreakdown, status session.ResultStatus) {
	switch status {
	case session.ResultSuccess:
		b.Success++
	case session.ResultError:
		b.Error++
	case session.ResultWarning:
		b.Warning++
	}
}

// pageBounds folds 1-based page/limit query values into limit+offset,
// clamping nonsense input to defaults.
func pageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
