package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drillbench/drillbench/internal/challenge"
)

// ChallengeStore implements challenge persistence on Postgres.
type ChallengeStore struct {
	pool *pgxpool.Pool
}

func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

func (s *ChallengeStore) Save(ctx context.Context, ch *challenge.Challenge, testCases []challenge.TestCase) error {
	examples, err := json.Marshal(ch.Examples)
	if err != nil {
		return fmt.Errorf("marshal examples: %w", err)
	}
	hints, err := json.Marshal(ch.Hints)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}
	if testCases == nil {
		testCases = []challenge.TestCase{}
	}
	cases, err := json.Marshal(testCases)
	if err != nil {
		return fmt.Errorf("marshal test cases: %w", err)
	}

	query := `
		INSERT INTO challenges (id, topic, title, difficulty, description,
			boilerplate, examples, hints, test_cases, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			topic = EXCLUDED.topic, title = EXCLUDED.title,
			difficulty = EXCLUDED.difficulty, description = EXCLUDED.description,
			boilerplate = EXCLUDED.boilerplate, examples = EXCLUDED.examples,
			hints = EXCLUDED.hints, test_cases = EXCLUDED.test_cases,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		ch.ID, ch.Topic, ch.Title, string(ch.Difficulty), ch.Description,
		ch.Boilerplate, examples, hints, cases, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (*challenge.Challenge, error) {
	query := `
		SELECT id, topic, title, difficulty, description, boilerplate,
			examples, hints, created_at, updated_at
		FROM challenges WHERE id = $1
	`
	ch, err := scanChallenge(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	return ch, err
}

func (s *ChallengeStore) GetTestCases(ctx context.Context, id string) ([]challenge.TestCase, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, "SELECT test_cases FROM challenges WHERE id = $1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test cases: %w", err)
	}

	var cases []challenge.TestCase
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("unmarshal test cases: %w", err)
	}
	return cases, nil
}

func (s *ChallengeStore) GetByTopic(ctx context.Context, topic string) ([]challenge.Challenge, error) {
	query := `
		SELECT id, topic, title, difficulty, description, boilerplate,
			examples, hints, created_at, updated_at
		FROM challenges WHERE LOWER(topic) = LOWER($1) ORDER BY title
	`
	rows, err := s.pool.Query(ctx, query, topic)
	if err != nil {
		return nil, fmt.Errorf("list challenges by topic: %w", err)
	}
	defer rows.Close()

	var out []challenge.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func (s *ChallengeStore) ListTopics(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT topic FROM challenges ORDER BY topic")
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var ch challenge.Challenge
	var difficulty string
	var examples, hints []byte

	err := row.Scan(&ch.ID, &ch.Topic, &ch.Title, &difficulty, &ch.Description,
		&ch.Boilerplate, &examples, &hints, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ch.Difficulty = challenge.Difficulty(difficulty)
	if err := json.Unmarshal(examples, &ch.Examples); err != nil {
		return nil, fmt.Errorf("unmarshal examples: %w", err)
	}
	if err := json.Unmarshal(hints, &ch.Hints); err != nil {
		return nil, fmt.Errorf("unmarshal hints: %w", err)
	}
	return &ch, nil
}

var _ challenge.Store = (*ChallengeStore)(nil)
