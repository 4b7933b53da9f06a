//go:build integration

package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/drillbench/drillbench/internal/progress"
	"github.com/drillbench/drillbench/internal/queue"
	"github.com/drillbench/drillbench/internal/session"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

func retryJob(update progress.Update) progress.RetryJob {
	return progress.RetryJob{
		Update: update,
		Completion: session.Completion{
			UserID:    uuid.New(),
			SessionID: "session-1700000000000",
			Topic:     "arrays",
			Result: session.QuestionResult{
				QuestionID: "two-sum",
				Status:     session.ResultSuccess,
				Attempts:   1,
				TimeSpent:  42,
			},
			CompletedAt: time.Now(),
		},
	}
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672")
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_EnqueueRetry(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)

	ctx := context.Background()
	if err := producer.EnqueueRetry(ctx, retryJob(progress.UpdateTopic)); err != nil {
		t.Fatalf("failed to enqueue retry job: %v", err)
	}

	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.RetryQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_Consumer_ReplaysJobs(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var replayed []progress.RetryJob
	var mu sync.Mutex
	receivedCh := make(chan struct{}, 5)

	replay := func(ctx context.Context, job progress.RetryJob) error {
		mu.Lock()
		replayed = append(replayed, job)
		mu.Unlock()
		receivedCh <- struct{}{}
		return nil
	}

	consumer := queue.NewConsumer(conn, replay, queue.ConsumerConfig{
		Workers:  2,
		Prefetch: 1,
	})

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	updates := []progress.Update{progress.UpdateProblem, progress.UpdateTopic, progress.UpdateHistory}
	for _, u := range updates {
		if err := producer.EnqueueRetry(ctx, retryJob(u)); err != nil {
			t.Fatalf("failed to enqueue %s job: %v", u, err)
		}
	}

	for i := 0; i < len(updates); i++ {
		select {
		case <-receivedCh:
		case <-ctx.Done():
			t.Fatalf("timeout waiting for job %d", i)
		}
	}

	mu.Lock()
	if len(replayed) != len(updates) {
		t.Errorf("expected %d replayed jobs, got %d", len(updates), len(replayed))
	}
	mu.Unlock()
}

func TestIntegration_Consumer_RequeuesOnce(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var attempts int
	var mu sync.Mutex
	doneCh := make(chan struct{}, 4)

	replay := func(ctx context.Context, job progress.RetryJob) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		doneCh <- struct{}{}
		return context.DeadlineExceeded
	}

	consumer := queue.NewConsumer(conn, replay, queue.ConsumerConfig{Workers: 1, Prefetch: 1})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	if err := producer.EnqueueRetry(ctx, retryJob(progress.UpdateAttempt)); err != nil {
		t.Fatalf("failed to enqueue retry job: %v", err)
	}

	// First delivery fails and is requeued, redelivery fails and drops.
	for i := 0; i < 2; i++ {
		select {
		case <-doneCh:
		case <-ctx.Done():
			t.Fatalf("timeout waiting for delivery %d", i+1)
		}
	}

	// Give the drop a moment, then verify the queue is empty.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 2 {
		t.Errorf("expected 2 delivery attempts, got %d", got)
	}

	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.RetryQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 0 {
		t.Errorf("expected empty queue after drop, got %d messages", q.Messages)
	}
}
