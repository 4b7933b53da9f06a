package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/progress"
)

// ProblemProgressStore persists the per-problem aggregate.
type ProblemProgressStore struct {
	db *DB
}

func NewProblemProgressStore(db *DB) *ProblemProgressStore {
	return &ProblemProgressStore{db: db}
}

func (s *ProblemProgressStore) Get(ctx context.Context, userID uuid.UUID, problemID string) (*progress.ProblemProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT attempts, mastered, average_time, last_attempted
		FROM problem_progress WHERE user_id = ? AND problem_id = ?`,
		userID.String(), problemID)

	p := progress.ProblemProgress{UserID: userID, ProblemID: problemID}
	var lastAttempted time.Time
	err := row.Scan(&p.Attempts, &p.Mastered, &p.AverageTime, &lastAttempted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan problem progress: %w", err)
	}
	p.LastAttempted = lastAttempted
	return &p, nil
}

func (s *ProblemProgressStore) Save(ctx context.Context, p *progress.ProblemProgress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO problem_progress (user_id, problem_id, attempts, mastered,
			average_time, last_attempted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, problem_id) DO UPDATE SET
			attempts=excluded.attempts, mastered=excluded.mastered,
			average_time=excluded.average_time, last_attempted=excluded.last_attempted`,
		p.UserID.String(), p.ProblemID, p.Attempts, p.Mastered,
		p.AverageTime, p.LastAttempted,
	)
	if err != nil {
		return fmt.Errorf("upsert problem progress: %w", err)
	}
	return nil
}

// TopicProgressStore persists the per-topic aggregate. The per-problem
// result map is a JSON column.
type TopicProgressStore struct {
	db *DB
}

func NewTopicProgressStore(db *DB) *TopicProgressStore {
	return &TopicProgressStore{db: db}
}

func (s *TopicProgressStore) Get(ctx context.Context, userID uuid.UUID, topic string) (*progress.TopicProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_attempts, successful_attempts, last_attempted,
			average_time, mastery_level, problem_results
		FROM topic_progress WHERE user_id = ? AND LOWER(topic) = LOWER(?)`,
		userID.String(), topic)

	tp := progress.TopicProgress{UserID: userID, Topic: topic}
	var lastAttempted time.Time
	var problemResults string
	err := row.Scan(&tp.TotalAttempts, &tp.SuccessfulAttempts, &lastAttempted,
		&tp.AverageTime, &tp.MasteryLevel, &problemResults)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan topic progress: %w", err)
	}

	tp.LastAttempted = lastAttempted
	if err := json.Unmarshal([]byte(problemResults), &tp.ProblemResults); err != nil {
		return nil, fmt.Errorf("unmarshal problem results: %w", err)
	}
	if tp.ProblemResults == nil {
		tp.ProblemResults = make(map[string]progress.TopicProblemResult)
	}
	return &tp, nil
}

// Save upserts the aggregate. The topic is stored folded so the
// case-insensitive read and the conflict key land on the same row.
func (s *TopicProgressStore) Save(ctx context.Context, tp *progress.TopicProgress) error {
	problemResults, err := json.Marshal(tp.ProblemResults)
	if err != nil {
		return fmt.Errorf("marshal problem results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO topic_progress (user_id, topic, total_attempts,
			successful_attempts, last_attempted, average_time, mastery_level,
			problem_results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, topic) DO UPDATE SET
			total_attempts=excluded.total_attempts,
			successful_attempts=excluded.successful_attempts,
			last_attempted=excluded.last_attempted,
			average_time=excluded.average_time,
			mastery_level=excluded.mastery_level,
			problem_results=excluded.problem_results`,
		tp.UserID.String(), strings.ToLower(tp.Topic), tp.TotalAttempts, tp.SuccessfulAttempts,
		tp.LastAttempted, tp.AverageTime, tp.MasteryLevel, string(problemResults),
	)
	if err != nil {
		return fmt.Errorf("upsert topic progress: %w", err)
	}
	return nil
}

var (
	_ progress.ProblemStore = (*ProblemProgressStore)(nil)
	_ progress.TopicStore   = (*TopicProgressStore)(nil)
)
