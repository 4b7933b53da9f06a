package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drillbench/drillbench/internal/progress"
)

// ProblemProgressStore persists the per-problem aggregate on Postgres.
type ProblemProgressStore struct {
	pool *pgxpool.Pool
}

func NewProblemProgressStore(pool *pgxpool.Pool) *ProblemProgressStore {
	return &ProblemProgressStore{pool: pool}
}

func (s *ProblemProgressStore) Get(ctx context.Context, userID uuid.UUID, problemID string) (*progress.ProblemProgress, error) {
	query := `
		SELECT attempts, mastered, average_time, last_attempted
		FROM problem_progress WHERE user_id = $1 AND problem_id = $2
	`
	p := progress.ProblemProgress{UserID: userID, ProblemID: problemID}
	err := s.pool.QueryRow(ctx, query, userID, problemID).Scan(
		&p.Attempts, &p.Mastered, &p.AverageTime, &p.LastAttempted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan problem progress: %w", err)
	}
	return &p, nil
}

func (s *ProblemProgressStore) Save(ctx context.Context, p *progress.ProblemProgress) error {
	query := `
		INSERT INTO problem_progress (user_id, problem_id, attempts, mastered,
			average_time, last_attempted)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, problem_id) DO UPDATE SET
			attempts = EXCLUDED.attempts, mastered = EXCLUDED.mastered,
			average_time = EXCLUDED.average_time,
			last_attempted = EXCLUDED.last_attempted
	`
	_, err := s.pool.Exec(ctx, query,
		p.UserID, p.ProblemID, p.Attempts, p.Mastered, p.AverageTime, p.LastAttempted,
	)
	if err != nil {
		return fmt.Errorf("upsert problem progress: %w", err)
	}
	return nil
}

// TopicProgressStore persists the per-topic aggregate on Postgres.
type TopicProgressStore struct {
	pool *pgxpool.Pool
}

func NewTopicProgressStore(pool *pgxpool.Pool) *TopicProgressStore {
	return &TopicProgressStore{pool: pool}
}

func (s *TopicProgressStore) Get(ctx context.Context, userID uuid.UUID, topic string) (*progress.TopicProgress, error) {
	query := `
		SELECT total_attempts, successful_attempts, last_attempted,
			average_time, mastery_level, problem_results
		FROM topic_progress WHERE user_id = $1 AND LOWER(topic) = LOWER($2)
	`
	tp := progress.TopicProgress{UserID: userID, Topic: topic}
	var problemResults []byte
	err := s.pool.QueryRow(ctx, query, userID, topic).Scan(
		&tp.TotalAttempts, &tp.SuccessfulAttempts, &tp.LastAttempted,
		&tp.AverageTime, &tp.MasteryLevel, &problemResults,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan topic progress: %w", err)
	}

	if err := json.Unmarshal(problemResults, &tp.ProblemResults); err != nil {
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

	query := `
		INSERT INTO topic_progress (user_id, topic, total_attempts,
			successful_attempts, last_attempted, average_time, mastery_level,
			problem_results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, topic) DO UPDATE SET
			total_attempts = EXCLUDED.total_attempts,
			successful_attempts = EXCLUDED.successful_attempts,
			last_attempted = EXCLUDED.last_attempted,
			average_time = EXCLUDED.average_time,
			mastery_level = EXCLUDED.mastery_level,
			problem_results = EXCLUDED.problem_results
	`
	_, err = s.pool.Exec(ctx, query,
		tp.UserID, strings.ToLower(tp.Topic), tp.TotalAttempts, tp.SuccessfulAttempts,
		tp.LastAttempted, tp.AverageTime, tp.MasteryLevel, problemResults,
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
