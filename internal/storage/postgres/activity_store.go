package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drillbench/drillbench/internal/progress"
	"github.com/drillbench/drillbench/internal/session"
)

// AttemptStore persists the append-only attempt log on Postgres.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Append(ctx context.Context, a *progress.ProblemAttempt) error {
	query := `
		INSERT INTO problem_attempts (id, user_id, problem_id, session_id,
			code, timestamp, time_spent, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.UserID, a.ProblemID, a.SessionID,
		a.Code, a.Timestamp, a.TimeSpent, string(a.Status), a.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]progress.ProblemAttempt, error) {
	query := `
		SELECT id, user_id, problem_id, session_id, code, timestamp,
			time_spent, status, error_message
		FROM problem_attempts WHERE user_id = $1 ORDER BY timestamp ASC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func (s *AttemptStore) ListByProblem(ctx context.Context, userID uuid.UUID, problemID string, limit, offset int) ([]progress.ProblemAttempt, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM problem_attempts WHERE user_id = $1 AND problem_id = $2",
		userID, problemID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count attempts: %w", err)
	}

	query := `
		SELECT id, user_id, problem_id, session_id, code, timestamp,
			time_spent, status, error_message
		FROM problem_attempts WHERE user_id = $1 AND problem_id = $2
		ORDER BY timestamp DESC LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, query, userID, problemID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list problem attempts: %w", err)
	}
	defer rows.Close()

	attempts, err := collectAttempts(rows)
	return attempts, total, err
}

func collectAttempts(rows pgx.Rows) ([]progress.ProblemAttempt, error) {
	var out []progress.ProblemAttempt
	for rows.Next() {
		var a progress.ProblemAttempt
		var status string
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProblemID, &a.SessionID,
			&a.Code, &a.Timestamp, &a.TimeSpent, &status, &a.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Status = session.ResultStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// HistoryStore persists session history documents on Postgres.
type HistoryStore struct {
	pool *pgxpool.Pool
}

func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

func (s *HistoryStore) Get(ctx context.Context, userID uuid.UUID, sessionID string) (*progress.SessionHistory, error) {
	query := `
		SELECT timestamp, topic_studied, problems_attempted
		FROM session_history WHERE user_id = $1 AND session_id = $2
	`
	h := progress.SessionHistory{UserID: userID, SessionID: sessionID}
	var problems []byte
	err := s.pool.QueryRow(ctx, query, userID, sessionID).Scan(
		&h.Timestamp, &h.TopicStudied, &problems,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session history: %w", err)
	}

	if err := json.Unmarshal(problems, &h.ProblemsAttempted); err != nil {
		return nil, fmt.Errorf("unmarshal attempted problems: %w", err)
	}
	return &h, nil
}

func (s *HistoryStore) Save(ctx context.Context, h *progress.SessionHistory) error {
	problems, err := json.Marshal(h.ProblemsAttempted)
	if err != nil {
		return fmt.Errorf("marshal attempted problems: %w", err)
	}

	query := `
		INSERT INTO session_history (user_id, session_id, timestamp,
			topic_studied, problems_attempted)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, session_id) DO UPDATE SET
			topic_studied = EXCLUDED.topic_studied,
			problems_attempted = EXCLUDED.problems_attempted
	`
	_, err = s.pool.Exec(ctx, query,
		h.UserID, h.SessionID, h.Timestamp, h.TopicStudied, problems,
	)
	if err != nil {
		return fmt.Errorf("upsert session history: %w", err)
	}
	return nil
}

func (s *HistoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]progress.SessionHistory, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM session_history WHERE user_id = $1", userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count session history: %w", err)
	}

	query := `
		SELECT session_id, timestamp, topic_studied, problems_attempted
		FROM session_history WHERE user_id = $1
		ORDER BY timestamp DESC LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list session history: %w", err)
	}
	defer rows.Close()

	var out []progress.SessionHistory
	for rows.Next() {
		h := progress.SessionHistory{UserID: userID}
		var problems []byte
		if err := rows.Scan(&h.SessionID, &h.Timestamp, &h.TopicStudied, &problems); err != nil {
			return nil, 0, fmt.Errorf("scan session history: %w", err)
		}
		if err := json.Unmarshal(problems, &h.ProblemsAttempted); err != nil {
			return nil, 0, fmt.Errorf("unmarshal attempted problems: %w", err)
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

var (
	_ progress.AttemptStore = (*AttemptStore)(nil)
	_ progress.HistoryStore = (*HistoryStore)(nil)
)
