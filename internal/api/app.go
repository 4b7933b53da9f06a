package api

import (
	"context"

	"github.com/drillbench/drillbench/internal/auth"
	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/config"
	"github.com/drillbench/drillbench/internal/executor"
	"github.com/drillbench/drillbench/internal/progress"
	"github.com/drillbench/drillbench/internal/session"
)

// App holds all application dependencies. The daemon wires services to
// a storage backend and hands the result here; the router only sees
// services, never stores.
type App struct {
	Config     *config.Config
	Auth       *auth.Service
	Challenges *challenge.Service
	Sessions   *session.Service
	Executor   *executor.Service
	Progress   *progress.Service

	// Ready reports whether the storage backend is reachable.
	Ready func(ctx context.Context) error
}
