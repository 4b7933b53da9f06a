package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned when a challenge does not exist.
	ErrNotFound = errors.New("challenge not found")
	// ErrInvalid is returned when a challenge draft is missing required fields.
	ErrInvalid = errors.New("invalid challenge")
)

// Store persists challenges and their hidden test cases.
type Store interface {
	Get(ctx context.Context, id string) (*Challenge, error)
	GetTestCases(ctx context.Context, id string) ([]TestCase, error)
	GetByTopic(ctx context.Context, topic string) ([]Challenge, error)
	ListTopics(ctx context.Context) ([]string, error)
	Save(ctx context.Context, ch *Challenge, testCases []TestCase) error
}

// Draft is the authoring payload for a new challenge. Test cases are
// accepted here but never exposed through read endpoints.
type Draft struct {
	Topic       string     `json:"topic"`
	Title       string     `json:"title"`
	Difficulty  Difficulty `json:"difficulty"`
	Description string     `json:"description"`
	Boilerplate string     `json:"boilerplate"`
	Examples    []Example  `json:"examples,omitempty"`
	Hints       []string   `json:"hints,omitempty"`
	TestCases   []TestCase `json:"testCases,omitempty"`
}

// BulkResult reports the outcome of a bulk upload. Failures carry the
// title (or index) of the offending draft and the reason.
type BulkResult struct {
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Failures   []BulkFailure `json:"failures,omitempty"`
}

type BulkFailure struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// Service implements challenge authoring and retrieval.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Get returns the challenge with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Challenge, error) {
	return s.store.Get(ctx, id)
}

// GetTestCases returns the hidden test cases for a challenge. An existing
// challenge with no cases yields an empty slice, not an error.
func (s *Service) GetTestCases(ctx context.Context, id string) ([]TestCase, error) {
	cases, err := s.store.GetTestCases(ctx, id)
	if err != nil {
		return nil, err
	}
	if cases == nil {
		cases = []TestCase{}
	}
	return cases, nil
}

// GetByTopic returns all challenges for a topic. Topic matching is
// case-insensitive exact (the store compares folded values).
func (s *Service) GetByTopic(ctx context.Context, topic string) ([]Challenge, error) {
	return s.store.GetByTopic(ctx, topic)
}

// ListTopics returns the distinct topics across all stored challenges.
func (s *Service) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := s.store.ListTopics(ctx)
	if err != nil {
		return nil, err
	}
	if topics == nil {
		topics = []string{}
	}
	return topics, nil
}

// Create stores a new challenge. The id is the slugified title; creating
// a second challenge with the same slug overwrites the first.
func (s *Service) Create(ctx context.Context, draft Draft) (*Challenge, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ch := &Challenge{
		ID:          Slugify(draft.Title),
		Topic:       draft.Topic,
		Title:       draft.Title,
		Difficulty:  draft.Difficulty,
		Description: draft.Description,
		Boilerplate: draft.Boilerplate,
		Examples:    draft.Examples,
		Hints:       draft.Hints,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Save(ctx, ch, draft.TestCases); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}

	s.logger.Info("challenge created", "id", ch.ID, "topic", ch.Topic)
	return ch, nil
}

// Update applies a shallow merge onto an existing challenge: only fields
// present in the update are replaced. The id never changes, even when the
// title does. Returns ErrNotFound for an unknown id.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*Challenge, error) {
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Topic != nil {
		ch.Topic = *upd.Topic
	}
	if upd.Title != nil {
		ch.Title = *upd.Title
	}
	if upd.Difficulty != nil {
		ch.Difficulty = Difficulty(*upd.Difficulty)
	}
	if upd.Description != nil {
		ch.Description = *upd.Description
	}
	if upd.Boilerplate != nil {
		ch.Boilerplate = *upd.Boilerplate
	}
	if upd.Examples != nil {
		ch.Examples = upd.Examples
	}
	if upd.Hints != nil {
		ch.Hints = upd.Hints
	}
	ch.UpdatedAt = s.now().UTC()

	testCases := upd.TestCases
	if testCases == nil {
		if testCases, err = s.store.GetTestCases(ctx, id); err != nil {
			return nil, fmt.Errorf("load test cases: %w", err)
		}
	}

	if err := s.store.Save(ctx, ch, testCases); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}

	s.logger.Info("challenge updated", "id", ch.ID)
	return ch, nil
}

// BulkUpload stores a batch of drafts. Each draft succeeds or fails on
// its own; one bad entry never aborts the rest.
func (s *Service) BulkUpload(ctx context.Context, drafts []Draft) (*BulkResult, error) {
	result := &BulkResult{}
	for i, draft := range drafts {
		if _, err := s.Create(ctx, draft); err != nil {
			title := draft.Title
			if title == "" {
				title = fmt.Sprintf("entry %d", i)
			}
			result.Failed++
			result.Failures = append(result.Failures, BulkFailure{Title: title, Error: err.Error()})
			s.logger.Warn("bulk upload entry failed", "title", title, "error", err)
			continue
		}
		result.Successful++
	}
	return result, nil
}

func validateDraft(d Draft) error {
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if d.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalid)
	}
	switch d.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalid, d.Difficulty)
	}
	return nil
}
