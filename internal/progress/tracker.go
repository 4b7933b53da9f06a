package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/session"
)

// Update names one of the four aggregates fed by a completion.
type Update string

const (
	UpdateProblem Update = "problem"
	UpdateTopic   Update = "topic"
	UpdateHistory Update = "history"
	UpdateAttempt Update = "attempt"
)

// RetryJob is a progress sub-update that exhausted its in-process
// retries and is parked on the reconciliation queue for replay.
type RetryJob struct {
	Update     Update             `json:"update"`
	Completion session.Completion `json:"completion"`
}

// Reconciler accepts exhausted sub-updates for asynchronous replay.
type Reconciler interface {
	EnqueueRetry(ctx context.Context, job RetryJob) error
}

// Tracker folds completed questions into the four progress aggregates.
// The aggregates are independent: updates run concurrently and a
// failure in one never blocks or rolls back the others.
type Tracker struct {
	problems   ProblemStore
	topics     TopicStore
	history    HistoryStore
	attempts   AttemptStore
	reconciler Reconciler
	retrier    retry.Retry[struct{}]
	logger     *slog.Logger
	now        func() time.Time
	newID      func() uuid.UUID
}

func NewTracker(problems ProblemStore, topics TopicStore, history HistoryStore, attempts AttemptStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		problems: problems,
		topics:   topics,
		history:  history,
		attempts: attempts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.New,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return err != nil && !errors.Is(err, context.Canceled)
			},
		}),
	}
}

// SetReconciler attaches a queue for replaying exhausted sub-updates.
func (t *Tracker) SetReconciler(r Reconciler) {
	t.reconciler = r
}

// RecordCompletion fans the completion out to all four aggregates
// concurrently and waits for them. Returned errors are per-aggregate
// warnings; the attempt-log write is listed like the others but is the
// one feed analytics cannot live without, so its failure is also
// escalated in the log.
func (t *Tracker) RecordCompletion(ctx context.Context, c session.Completion) []error {
	updates := []struct {
		name Update
		fn   func(context.Context, session.Completion) error
	}{
		{UpdateProblem, t.updateProblemProgress},
		{UpdateTopic, t.updateTopicProgress},
		{UpdateHistory, t.appendSessionHistory},
		{UpdateAttempt, t.appendAttempt},
	}

	errs := make([]error, len(updates))
	var wg sync.WaitGroup
	for i, u := range updates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = t.runUpdate(ctx, u.name, u.fn, c)
		}()
	}
	wg.Wait()

	var out []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if updates[i].name == UpdateAttempt {
			t.logger.Error("attempt log write failed, analytics will lag",
				"user_id", c.UserID, "session_id", c.SessionID, "error", err)
		}
		out = append(out, fmt.Errorf("%s update: %w", updates[i].name, err))
	}
	return out
}

// Replay re-runs a single parked sub-update from the reconciliation
// queue. Errors bubble to the consumer, which decides requeue vs drop.
func (t *Tracker) Replay(ctx context.Context, job RetryJob) error {
	switch job.Update {
	case UpdateProblem:
		return t.updateProblemProgress(ctx, job.Completion)
	case UpdateTopic:
		return t.updateTopicProgress(ctx, job.Completion)
	case UpdateHistory:
		return t.appendSessionHistory(ctx, job.Completion)
	case UpdateAttempt:
		return t.appendAttempt(ctx, job.Completion)
	}
	return fmt.Errorf("unknown update kind %q", job.Update)
}

func (t *Tracker) runUpdate(ctx context.Context, name Update, fn func(context.Context, session.Completion) error, c session.Completion) error {
	_, err := t.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx, c)
	})
	if err == nil {
		return nil
	}

	if t.reconciler != nil {
		job := RetryJob{Update: name, Completion: c}
		if qErr := t.reconciler.EnqueueRetry(ctx, job); qErr != nil {
			t.logger.Warn("failed to park progress update for reconciliation",
				"update", name, "error", qErr)
		} else {
			t.logger.Info("progress update parked for reconciliation",
				"update", name, "user_id", c.UserID)
		}
	}
	return err
}

func (t *Tracker) updateProblemProgress(ctx context.Context, c session.Completion) error {
	problemID := c.Result.QuestionID

	p, err := t.problems.Get(ctx, c.UserID, problemID)
	if errors.Is(err, ErrNotFound) {
		p = &ProblemProgress{UserID: c.UserID, ProblemID: problemID}
	} else if err != nil {
		return fmt.Errorf("load problem progress: %w", err)
	}

	p.AverageTime = runningMean(p.AverageTime, p.Attempts, c.Result.TimeSpent)
	p.Attempts++
	p.Mastered = c.Result.Status == session.ResultSuccess
	p.LastAttempted = c.CompletedAt

	if err := t.problems.Save(ctx, p); err != nil {
		return fmt.Errorf("save problem progress: %w", err)
	}
	return nil
}

func (t *Tracker) updateTopicProgress(ctx context.Context, c session.Completion) error {
	problemID := c.Result.QuestionID

	tp, err := t.topics.Get(ctx, c.UserID, c.Topic)
	if errors.Is(err, ErrNotFound) {
		tp = &TopicProgress{
			UserID:         c.UserID,
			Topic:          c.Topic,
			ProblemResults: make(map[string]TopicProblemResult),
		}
	} else if err != nil {
		return fmt.Errorf("load topic progress: %w", err)
	}
	if tp.ProblemResults == nil {
		tp.ProblemResults = make(map[string]TopicProblemResult)
	}

	prev, hasPrev := tp.ProblemResults[problemID]
	priorSuccess := hasPrev && prev.Status == session.ResultSuccess

	tp.AverageTime = runningMean(tp.AverageTime, tp.TotalAttempts, c.Result.TimeSpent)
	tp.TotalAttempts++
	if c.Result.Status == session.ResultSuccess {
		tp.SuccessfulAttempts++
	}
	tp.LastAttempted = c.CompletedAt

	tp.ProblemResults[problemID] = TopicProblemResult{
		LastAttempted:  c.CompletedAt,
		Status:         c.Result.Status,
		Attempts:       c.Result.Attempts,
		NextReviewDate: nextReviewDate(c.CompletedAt, c.Result.Status, c.Result.Attempts, priorSuccess),
	}

	// Mastery is recounted from scratch, not incremented: the latest
	// status per problem is what counts.
	mastery := 0
	for _, r := range tp.ProblemResults {
		if r.Status == session.ResultSuccess {
			mastery++
		}
	}
	tp.MasteryLevel = mastery

	if err := t.topics.Save(ctx, tp); err != nil {
		return fmt.Errorf("save topic progress: %w", err)
	}
	return nil
}

func (t *Tracker) appendSessionHistory(ctx context.Context, c session.Completion) error {
	h, err := t.history.Get(ctx, c.UserID, c.SessionID)
	if errors.Is(err, ErrNotFound) {
		h = &SessionHistory{
			UserID:       c.UserID,
			SessionID:    c.SessionID,
			Timestamp:    c.CompletedAt,
			TopicStudied: c.Topic,
		}
	} else if err != nil {
		return fmt.Errorf("load session history: %w", err)
	}

	h.ProblemsAttempted = append(h.ProblemsAttempted, AttemptedProblem{
		ChallengeID:  c.Result.QuestionID,
		Topic:        c.Topic,
		Correct:      c.Result.Status == session.ResultSuccess,
		AttemptCount: c.Result.Attempts,
		Timestamp:    c.CompletedAt,
		TimeSpent:    c.Result.TimeSpent,
	})

	if err := t.history.Save(ctx, h); err != nil {
		return fmt.Errorf("save session history: %w", err)
	}
	return nil
}

func (t *Tracker) appendAttempt(ctx context.Context, c session.Completion) error {
	attempt := &ProblemAttempt{
		ID:           t.newID(),
		UserID:       c.UserID,
		ProblemID:    c.Result.QuestionID,
		SessionID:    c.SessionID,
		Code:         c.Result.Code,
		Timestamp:    c.CompletedAt,
		TimeSpent:    c.Result.TimeSpent,
		Status:       c.Result.Status,
		ErrorMessage: firstTestError(c.Result),
	}
	if err := t.attempts.Append(ctx, attempt); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// runningMean folds one more sample into an incrementally kept average.
func runningMean(prevAvg float64, prevCount, sample int) float64 {
	return (prevAvg*float64(prevCount) + float64(sample)) / float64(prevCount+1)
}

func firstTestError(r session.QuestionResult) string {
	for _, tr := range r.TestResults {
		if tr.Error != "" {
			return tr.Error
		}
	}
	return ""
}

var _ session.Recorder = (*Tracker)(nil)
