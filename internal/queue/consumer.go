package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/drillbench/drillbench/internal/progress"
)

// ReplayFunc re-runs a parked progress update against the stores.
type ReplayFunc func(ctx context.Context, job progress.RetryJob) error

// Consumer drains the retry queue and replays parked updates
type Consumer struct {
	conn       *Connection
	replay     ReplayFunc
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-message processing deadline
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 1, // Process one at a time per worker for fairness
		Timeout:  30 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, replay ReplayFunc, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Consumer{
		conn:     conn,
		replay:   replay,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	// Set QoS (prefetch)
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// Start consuming
	msgs, err := ch.Consume(
		RetryQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting retry queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	// Start worker goroutines
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var retry RetryMessage
	if err := json.Unmarshal(msg.Body, &retry); err != nil {
		slog.Error("failed to unmarshal retry message",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		return
	}

	slog.Info("replaying progress update",
		"worker_id", workerID,
		"message_id", retry.ID,
		"update", retry.Job.Update,
		"user_id", retry.Job.Completion.UserID,
	)

	jobCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.replay(jobCtx, retry.Job)
	if err == nil {
		if err := msg.Ack(false); err != nil {
			slog.Error("failed to ack message",
				"worker_id", workerID,
				"message_id", retry.ID,
				"error", err,
			)
		}
		return
	}

	// One requeue per message: a second failure drops it so a broken
	// update cannot loop forever.
	if msg.Redelivered {
		slog.Error("replay failed twice, dropping update",
			"worker_id", workerID,
			"message_id", retry.ID,
			"update", retry.Job.Update,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	slog.Warn("replay failed, requeueing",
		"worker_id", workerID,
		"message_id", retry.ID,
		"update", retry.Job.Update,
		"error", err,
	)
	_ = msg.Nack(false, true)
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
