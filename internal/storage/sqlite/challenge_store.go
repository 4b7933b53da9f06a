package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drillbench/drillbench/internal/challenge"
)

// ChallengeStore implements challenge persistence backed by SQLite.
// Nested structures (examples, hints, test cases) are JSON columns.
type ChallengeStore struct {
	db *DB
}

func NewChallengeStore(db *DB) *ChallengeStore {
	return &ChallengeStore{db: db}
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, topic, title, difficulty, description,
			boilerplate, examples, hints, test_cases, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic, title=excluded.title,
			difficulty=excluded.difficulty, description=excluded.description,
			boilerplate=excluded.boilerplate, examples=excluded.examples,
			hints=excluded.hints, test_cases=excluded.test_cases,
			updated_at=excluded.updated_at`,
		ch.ID, ch.Topic, ch.Title, string(ch.Difficulty), ch.Description,
		ch.Boilerplate, string(examples), string(hints), string(cases),
		ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (*challenge.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, title, difficulty, description, boilerplate,
			examples, hints, created_at, updated_at
		FROM challenges WHERE id = ?`, id)
	return scanChallenge(row)
}

func (s *ChallengeStore) GetTestCases(ctx context.Context, id string) ([]challenge.TestCase, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT test_cases FROM challenges WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test cases: %w", err)
	}

	var cases []challenge.TestCase
	if err := json.Unmarshal([]byte(raw), &cases); err != nil {
		return nil, fmt.Errorf("unmarshal test cases: %w", err)
	}
	return cases, nil
}

func (s *ChallengeStore) GetByTopic(ctx context.Context, topic string) ([]challenge.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, title, difficulty, description, boilerplate,
			examples, hints, created_at, updated_at
		FROM challenges WHERE LOWER(topic) = LOWER(?) ORDER BY title`, topic)
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
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT topic FROM challenges ORDER BY topic")
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (*challenge.Challenge, error) {
	var ch challenge.Challenge
	var difficulty, examples, hints string
	var createdAt, updatedAt time.Time

	err := row.Scan(&ch.ID, &ch.Topic, &ch.Title, &difficulty, &ch.Description,
		&ch.Boilerplate, &examples, &hints, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge: %w", err)
	}

	ch.Difficulty = challenge.Difficulty(difficulty)
	ch.CreatedAt = createdAt
	ch.UpdatedAt = updatedAt
	if err := json.Unmarshal([]byte(examples), &ch.Examples); err != nil {
		return nil, fmt.Errorf("unmarshal examples: %w", err)
	}
	if err := json.Unmarshal([]byte(hints), &ch.Hints); err != nil {
		return nil, fmt.Errorf("unmarshal hints: %w", err)
	}
	return &ch, nil
}

var _ challenge.Store = (*ChallengeStore)(nil)
