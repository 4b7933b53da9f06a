package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/session"
)

// SessionStore implements session persistence on Postgres.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
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

	query := `
		INSERT INTO practice_sessions (id, user_id, config, challenges,
			current_question, score, status, start_time, results,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			config = EXCLUDED.config, challenges = EXCLUDED.challenges,
			current_question = EXCLUDED.current_question,
			score = EXCLUDED.score, status = EXCLUDED.status,
			results = EXCLUDED.results, updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		sess.ID, sess.UserID, config, challenges,
		sess.CurrentQuestion, sess.Score, string(sess.Status), sess.StartTime,
		results, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT id, user_id, config, challenges, current_question, score,
			status, start_time, results, created_at, updated_at
		FROM practice_sessions WHERE id = $1
	`
	var sess session.Session
	var status string
	var config, challengesJSON, results []byte

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.UserID, &config, &challengesJSON,
		&sess.CurrentQuestion, &sess.Score, &status, &sess.StartTime,
		&results, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Status = session.Status(status)
	if err := json.Unmarshal(config, &sess.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(challengesJSON, &sess.Challenges); err != nil {
		return nil, fmt.Errorf("unmarshal challenges: %w", err)
	}
	if err := json.Unmarshal(results, &sess.Results); err != nil {
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
