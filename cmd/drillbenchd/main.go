package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drillbench/drillbench/internal/api"
	"github.com/drillbench/drillbench/internal/auth"
	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/config"
	"github.com/drillbench/drillbench/internal/executor"
	"github.com/drillbench/drillbench/internal/progress"
	"github.com/drillbench/drillbench/internal/queue"
	"github.com/drillbench/drillbench/internal/session"
	"github.com/drillbench/drillbench/internal/storage/postgres"
	"github.com/drillbench/drillbench/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

// stores bundles one storage backend's implementations of every domain
// store, plus a liveness probe and a closer for shutdown.
type stores struct {
	challenges challenge.Store
	sessions   session.Store
	problems   progress.ProblemStore
	topics     progress.TopicStore
	attempts   progress.AttemptStore
	history    progress.HistoryStore
	ping       func(ctx context.Context) error
	close      func()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.close()

	// Services
	challenges := challenge.NewService(st.challenges, nil)

	runner, err := buildRunner(cfg)
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}
	exec := executor.NewService(runner, time.Duration(cfg.ExecutionTimeout)*time.Second, nil)

	tracker := progress.NewTracker(st.problems, st.topics, st.history, st.attempts, nil)
	analytics := progress.NewService(st.topics, st.attempts, st.history, nil)
	sessions := session.NewService(st.sessions, challenges, tracker, nil)
	authSvc := auth.NewService(cfg.JWTSecret, time.Duration(cfg.TokenTTL)*time.Second)

	// Reconciliation queue is optional: without it, exhausted progress
	// updates are logged and dropped.
	if cfg.RabbitMQURL != "" {
		conn, err := queue.NewConnection(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()

		tracker.SetReconciler(queue.NewProducer(conn))

		consumer := queue.NewConsumer(conn, tracker.Replay, queue.DefaultConsumerConfig())
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start queue consumer: %w", err)
		}
		defer consumer.Stop()
	} else {
		slog.Info("no RABBITMQ_URL set, progress reconciliation disabled")
	}

	seedChallenges(ctx, cfg, challenges)

	app := &api.App{
		Config:     cfg,
		Auth:       authSvc,
		Challenges: challenges,
		Sessions:   sessions,
		Executor:   exec,
		Progress:   analytics,
		Ready:      st.ping,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	slog.Info("daemon listening",
		"port", cfg.Port,
		"executor", cfg.ExecutorBackend,
		"debug", cfg.Debug,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

// openStores selects the storage backend: DATABASE_URL means Postgres,
// otherwise an embedded SQLite file.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}

		slog.Info("using postgres storage")
		return &stores{
			challenges: postgres.NewChallengeStore(pool),
			sessions:   postgres.NewSessionStore(pool),
			problems:   postgres.NewProblemProgressStore(pool),
			topics:     postgres.NewTopicProgressStore(pool),
			attempts:   postgres.NewAttemptStore(pool),
			history:    postgres.NewHistoryStore(pool),
			ping:       pool.Ping,
			close:      pool.Close,
		}, nil
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	slog.Info("using sqlite storage", "path", cfg.SQLitePath)
	return &stores{
		challenges: sqlite.NewChallengeStore(db),
		sessions:   sqlite.NewSessionStore(db),
		problems:   sqlite.NewProblemProgressStore(db),
		topics:     sqlite.NewTopicProgressStore(db),
		attempts:   sqlite.NewAttemptStore(db),
		history:    sqlite.NewHistoryStore(db),
		ping:       db.PingContext,
		close:      func() { db.Close() },
	}, nil
}

// buildRunner assembles the snippet runner with resilience wrapping.
func buildRunner(cfg *config.Config) (executor.Runner, error) {
	var inner executor.Runner
	switch cfg.ExecutorBackend {
	case "docker":
		r, err := executor.NewDockerRunner(executor.DockerConfig{
			Image:      cfg.ExecutorImage,
			MemoryMB:   cfg.ExecutorMemoryMB,
			CPULimit:   cfg.ExecutorCPULimit,
			NetworkOff: true,
		})
		if err != nil {
			return nil, fmt.Errorf("docker runner: %w", err)
		}
		inner = r
	default:
		inner = executor.NewLocalRunner()
	}

	return executor.NewResilientRunner(inner, executor.ResilientConfig{
		MaxConcurrent: cfg.MaxConcurrentRuns,
		RatePerSecond: cfg.RunsPerSecond,
	}), nil
}

// seedChallenges loads YAML challenge packs on startup. A missing packs
// directory is not an error; a fresh deployment has none.
func seedChallenges(ctx context.Context, cfg *config.Config, challenges *challenge.Service) {
	if cfg.ChallengePacksDir == "" {
		return
	}
	if _, err := os.Stat(cfg.ChallengePacksDir); os.IsNotExist(err) {
		return
	}

	loader := challenge.NewLoader(cfg.ChallengePacksDir, challenges)
	result, err := loader.LoadAll(ctx)
	if err != nil {
		slog.Warn("challenge pack seeding failed", "error", err)
		return
	}
	if result.Successful > 0 || result.Failed > 0 {
		slog.Info("challenge packs loaded",
			"successful", result.Successful,
			"failed", result.Failed,
		)
	}
}

// setupLogging installs the default logger: text to stderr, plus JSON
// to a log file when one is configured.
func setupLogging(cfg *config.Config) (*os.File, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if cfg.LogFile == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return nil, nil
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	slog.SetDefault(slog.New(&multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}),
			stderrHandler,
		},
	}))
	return logFile, nil
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
