package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/challenge"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrNoChallenges     = errors.New("no challenges available for session config")
	ErrInvalidConfig    = errors.New("invalid session config")
	ErrInvalidStatus    = errors.New("invalid session status")
	ErrInvalidResult    = errors.New("invalid question result")
	ErrSessionCompleted = errors.New("session already completed")
)

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}

// Recorder receives completion facts for progress tracking. Recording
// happens after the session write commits and must never undo it;
// implementations report per-aggregate failures, the service logs them.
type Recorder interface {
	RecordCompletion(ctx context.Context, c Completion) []error
}

// Service manages practice sessions.
type Service struct {
	store      Store
	challenges *challenge.Service
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
	shuffle    func(n int, swap func(i, j int))

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store Store, challenges *challenge.Service, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		challenges: challenges,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
		shuffle:    rand.Shuffle,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockSession serializes writers of one session. The store has no
// optimistic guard on its upsert, so the read-modify-write in status
// and completion updates must not interleave; a single daemon owns the
// store, which makes an in-process lock sufficient.
func (s *Service) lockSession(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create starts a new session: sample the topic pool, filter by
// difficulty when one is requested, shuffle, take up to questionCount,
// and snapshot the picks into the session.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, cfg Config) (*Session, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	if cfg.QuestionCount <= 0 {
		return nil, fmt.Errorf("%w: questionCount must be positive", ErrInvalidConfig)
	}

	pool, err := s.challenges.GetByTopic(ctx, cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("load challenge pool: %w", err)
	}

	if cfg.Difficulty != "" {
		filtered := pool[:0]
		for _, ch := range pool {
			if string(ch.Difficulty) == cfg.Difficulty {
				filtered = append(filtered, ch)
			}
		}
		pool = filtered
	}

	if len(pool) == 0 {
		return nil, ErrNoChallenges
	}

	s.shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	count := cfg.QuestionCount
	if count > len(pool) {
		count = len(pool)
	}

	now := s.now().UTC()
	sess := &Session{
		ID:         "session-" + strconv.FormatInt(now.UnixMilli(), 10),
		UserID:     userID,
		Config:     cfg,
		Challenges: append([]challenge.Challenge(nil), pool[:count]...),
		Status:     StatusActive,
		StartTime:  now,
		Results:    make(map[string]QuestionResult),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"topic", cfg.Topic,
		"questions", len(sess.Challenges),
	)
	return sess, nil
}

// Get retrieves a session owned by the given user. Sessions of other
// users read as not found.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// UpdateStatus moves a session between lifecycle states. Completed is
// terminal; requests to leave it are rejected.
func (s *Service) UpdateStatus(ctx context.Context, userID uuid.UUID, id string, status Status) (*Session, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	unlock := s.lockSession(id)
	defer unlock()

	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted && status != StatusCompleted {
		return nil, ErrSessionCompleted
	}

	sess.Status = status
	sess.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// CompleteQuestion records a question outcome. The session write is the
// commit point: cursor, score and result land atomically before any
// progress tracking runs. Repeating a questionId overwrites the stored
// result but never advances the cursor or rescores; the first
// completion is the one that counts for scoring.
func (s *Service) CompleteQuestion(ctx context.Context, userID uuid.UUID, id string, result QuestionResult) (*Session, error) {
	if err := validateResult(result); err != nil {
		return nil, err
	}

	unlock := s.lockSession(id)
	defer unlock()

	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted {
		return nil, ErrSessionCompleted
	}

	now := s.now().UTC()
	_, repeat := sess.Results[result.QuestionID]
	sess.Results[result.QuestionID] = result
	sess.UpdatedAt = now

	if repeat {
		s.logger.Warn("duplicate question completion, overwriting result",
			"session_id", sess.ID,
			"question_id", result.QuestionID,
		)
	} else {
		sess.Score += ScoreDelta(result.Status)
		sess.CurrentQuestion++
		if sess.CurrentQuestion >= len(sess.Challenges) {
			sess.Status = StatusCompleted
		}
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	// Progress tracking runs only for first completions, after the
	// session write is durable. Failures degrade progress data, never
	// the session.
	if !repeat && s.recorder != nil {
		completion := Completion{
			UserID:      userID,
			SessionID:   sess.ID,
			Topic:       sess.Config.Topic,
			Result:      result,
			CompletedAt: now,
		}
		for _, recErr := range s.recorder.RecordCompletion(ctx, completion) {
			s.logger.Warn("progress update failed",
				"session_id", sess.ID,
				"question_id", result.QuestionID,
				"error", recErr,
			)
		}
	}

	return sess, nil
}

func validateResult(r QuestionResult) error {
	if r.QuestionID == "" {
		return fmt.Errorf("%w: questionId is required", ErrInvalidResult)
	}
	if !ValidResultStatus(r.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidResult, r.Status)
	}
	if r.Attempts < 1 {
		return fmt.Errorf("%w: attempts must be at least 1", ErrInvalidResult)
	}
	if r.TimeSpent < 0 {
		return fmt.Errorf("%w: timeSpent cannot be negative", ErrInvalidResult)
	}
	return nil
}
