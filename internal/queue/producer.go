package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/progress"
)

// Producer parks exhausted progress updates on the retry queue. It is
// the reconciler the progress tracker hands its failures to.
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// EnqueueRetry publishes a parked progress update for later replay.
func (p *Producer) EnqueueRetry(ctx context.Context, job progress.RetryJob) error {
	msg := RetryMessage{
		ID:         uuid.New(),
		Job:        job,
		EnqueuedAt: time.Now(),
	}

	if err := p.conn.PublishJSON(ctx, RetryQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish retry job: %w", err)
	}

	slog.Info("published retry job",
		"message_id", msg.ID,
		"update", job.Update,
		"user_id", job.Completion.UserID,
		"session_id", job.Completion.SessionID,
	)

	return nil
}

var _ progress.Reconciler = (*Producer)(nil)
