package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/progress"
	"github.com/drillbench/drillbench/internal/session"
)

// AttemptStore persists the append-only problem attempt log.
type AttemptStore struct {
	db *DB
}

func NewAttemptStore(db *DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Append(ctx context.Context, a *progress.ProblemAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO problem_attempts (id, user_id, problem_id, session_id,
			code, timestamp, time_spent, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.UserID.String(), a.ProblemID, a.SessionID,
		a.Code, a.Timestamp, a.TimeSpent, string(a.Status), a.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]progress.ProblemAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, problem_id, session_id, code, timestamp,
			time_spent, status, error_message
		FROM problem_attempts WHERE user_id = ? ORDER BY timestamp ASC`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func (s *AttemptStore) ListByProblem(ctx context.Context, userID uuid.UUID, problemID string, limit, offset int) ([]progress.ProblemAttempt, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM problem_attempts WHERE user_id = ? AND problem_id = ?",
		userID.String(), problemID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count attempts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, problem_id, session_id, code, timestamp,
			time_spent, status, error_message
		FROM problem_attempts WHERE user_id = ? AND problem_id = ?
		ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		userID.String(), problemID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list problem attempts: %w", err)
	}
	defer rows.Close()

	attempts, err := collectAttempts(rows)
	return attempts, total, err
}

func collectAttempts(rows *sql.Rows) ([]progress.ProblemAttempt, error) {
	var out []progress.ProblemAttempt
	for rows.Next() {
		var a progress.ProblemAttempt
		var id, userID, status string
		var ts time.Time
		if err := rows.Scan(&id, &userID, &a.ProblemID, &a.SessionID, &a.Code,
			&ts, &a.TimeSpent, &status, &a.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		var err error
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse attempt id: %w", err)
		}
		if a.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		a.Timestamp = ts
		a.Status = session.ResultStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// HistoryStore persists session history documents. The attempted
// problem list is a JSON column.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Get(ctx context.Context, userID uuid.UUID, sessionID string) (*progress.SessionHistory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp, topic_studied, problems_attempted
		FROM session_history WHERE user_id = ? AND session_id = ?`,
		userID.String(), sessionID)

	h := progress.SessionHistory{UserID: userID, SessionID: sessionID}
	var ts time.Time
	var problems string
	err := row.Scan(&ts, &h.TopicStudied, &problems)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session history: %w", err)
	}

	h.Timestamp = ts
	if err := json.Unmarshal([]byte(problems), &h.ProblemsAttempted); err != nil {
		return nil, fmt.Errorf("unmarshal attempted problems: %w", err)
	}
	return &h, nil
}

func (s *HistoryStore) Save(ctx context.Context, h *progress.SessionHistory) error {
	problems, err := json.Marshal(h.ProblemsAttempted)
	if err != nil {
		return fmt.Errorf("marshal attempted problems: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_history (user_id, session_id, timestamp,
			topic_studied, problems_attempted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			topic_studied=excluded.topic_studied,
			problems_attempted=excluded.problems_attempted`,
		h.UserID.String(), h.SessionID, h.Timestamp, h.TopicStudied, string(problems),
	)
	if err != nil {
		return fmt.Errorf("upsert session history: %w", err)
	}
	return nil
}

func (s *HistoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]progress.SessionHistory, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM session_history WHERE user_id = ?",
		userID.String()).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count session history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, timestamp, topic_studied, problems_attempted
		FROM session_history WHERE user_id = ?
		ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		userID.String(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list session history: %w", err)
	}
	defer rows.Close()

	var out []progress.SessionHistory
	for rows.Next() {
		h := progress.SessionHistory{UserID: userID}
		var ts time.Time
		var problems string
		if err := rows.Scan(&h.SessionID, &ts, &h.TopicStudied, &problems); err != nil {
			return nil, 0, fmt.Errorf("scan session history: %w", err)
		}
		h.Timestamp = ts
		if err := json.Unmarshal([]byte(problems), &h.ProblemsAttempted); err != nil {
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
