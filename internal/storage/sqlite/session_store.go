package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/session"
)

// SessionStore implements session persistence backed by SQLite. The
// challenge snapshot and the results map are JSON columns.
type SessionStore struct {
	db *DB
}

func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	config, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	challenges, err := json.Marshal(sess.Challenges)
	if err != nil {
		return fmt.Errorf("marshal challenges: %w", err)
	}
	results, err := json.Marshal(sess.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO practice_sessions (id, user_id, config, challenges,
			current_question, score, status, start_time, results,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config=excluded.config, challenges=excluded.challenges,
			current_question=excluded.current_question, score=excluded.score,
			status=excluded.status, results=excluded.results,
			updated_at=excluded.updated_at`,
		sess.ID, sess.UserID.String(), string(config), string(challenges),
		sess.CurrentQuestion, sess.Score, string(sess.Status), sess.StartTime,
		string(results), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, config, challenges, current_question, score,
			status, start_time, results, created_at, updated_at
		FROM practice_sessions WHERE id = ?`, id)

	var sess session.Session
	var userID, config, challengesJSON, status, results string
	var startTime, createdAt, updatedAt time.Time

	err := row.Scan(&sess.ID, &userID, &config, &challengesJSON,
		&sess.CurrentQuestion, &sess.Score, &status, &startTime, &results,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.UserID, err = uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	sess.Status = session.Status(status)
	sess.StartTime = startTime
	sess.CreatedAt = createdAt
	sess.UpdatedAt = updatedAt

	if err := json.Unmarshal([]byte(config), &sess.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(challengesJSON), &sess.Challenges); err != nil {
		return nil, fmt.Errorf("unmarshal challenges: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &sess.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	if sess.Challenges == nil {
		sess.Challenges = []challenge.Challenge{}
	}
	if sess.Results == nil {
		sess.Results = make(map[string]session.QuestionResult)
	}
	return &sess, nil
}

var _ session.Store = (*SessionStore)(nil)
