package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/drillbench/drillbench/internal/api/handlers"
	"github.com/drillbench/drillbench/internal/api/middleware"
)

// Router wraps the HTTP multiplexer with middleware and handlers
type Router struct {
	mux       *http.ServeMux
	app       *App
	challenge *handlers.ChallengeHandler
	execute   *handlers.ExecuteHandler
	session   *handlers.SessionHandler
	progress  *handlers.ProgressHandler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(app *App) http.Handler {
	r := &Router{
		mux: http.NewServeMux(),
		app: app,
	}

	// Initialize handlers
	r.challenge = handlers.NewChallengeHandler(app.Challenges)
	r.execute = handlers.NewExecuteHandler(app.Executor, app.Challenges)
	r.session = handlers.NewSessionHandler(app.Sessions)
	r.progress = handlers.NewProgressHandler(app.Progress)

	// Register routes
	r.registerRoutes()

	// Build middleware chain
	return r.buildMiddlewareChain(r.mux, app)
}

func (r *Router) registerRoutes() {
	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /ready", r.handleReady)

	// Code execution carries its own stricter rate limit: every request
	// spawns interpreter processes.
	execute := http.Handler(http.HandlerFunc(r.execute.Execute))
	if !r.app.Config.Debug {
		execute = middleware.ExecuteRateLimitMiddleware(r.rateLimitConfig())(execute)
	}
	r.mux.Handle("POST /api/v1/code/execute", execute)

	// Challenges (public read, auth required for authoring)
	r.mux.HandleFunc("GET /api/v1/challenges/topics", r.challenge.ListTopics)
	r.mux.HandleFunc("GET /api/v1/challenges/topic/{topic}", r.challenge.GetByTopic)
	r.mux.HandleFunc("GET /api/v1/challenges/{id}", r.challenge.Get)
	r.mux.HandleFunc("POST /api/v1/challenges", r.requireAuth(r.challenge.Create))
	r.mux.HandleFunc("PUT /api/v1/challenges/{id}", r.requireAuth(r.challenge.Update))
	r.mux.HandleFunc("POST /api/v1/admin/challenges/bulk-upload", r.requireAuth(r.challenge.BulkUpload))

	// Sessions (requires auth)
	r.mux.HandleFunc("POST /api/v1/sessions", r.requireAuth(r.session.Create))
	r.mux.HandleFunc("GET /api/v1/sessions/{sessionId}", r.requireAuth(r.session.Get))
	r.mux.HandleFunc("PUT /api/v1/sessions/{sessionId}", r.requireAuth(r.session.UpdateStatus))
	r.mux.HandleFunc("POST /api/v1/sessions/{sessionId}/questions/{questionId}/complete", r.requireAuth(r.session.CompleteQuestion))

	// Progress and analytics (requires auth)
	r.mux.HandleFunc("GET /api/v1/sessions/progress/topics/{topic}", r.requireAuth(r.progress.GetTopicProgress))
	r.mux.HandleFunc("GET /api/v1/sessions/progress/problems/{problemId}", r.requireAuth(r.progress.GetProblemHistory))
	r.mux.HandleFunc("GET /api/v1/sessions/activity/heatmap", r.requireAuth(r.progress.GetHeatmap))
	r.mux.HandleFunc("GET /api/v1/sessions/history", r.requireAuth(r.progress.GetSessionHistory))
}

func (r *Router) rateLimitConfig() middleware.RateLimitConfig {
	cfg := middleware.DefaultRateLimitConfig()
	if r.app.Config.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = r.app.Config.RequestsPerMinute
	}
	if r.app.Config.ExecutesPerMinute > 0 {
		cfg.ExecutesPerMinute = r.app.Config.ExecutesPerMinute
	}
	return cfg
}

func (r *Router) buildMiddlewareChain(handler http.Handler, app *App) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = middleware.Recovery(handler)
	handler = middleware.Logger(handler)

	// Apply rate limiting (skip in debug mode for easier development)
	if !app.Config.Debug {
		handler = middleware.RateLimitMiddleware(r.rateLimitConfig())(handler)
	}

	handler = middleware.RequestID(handler)
	handler = middleware.CORS(handler)

	return handler
}

// requireAuth wraps a handler with bearer token authentication
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		header := req.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			handlers.Unauthorized(w, req, "authentication required")
			return
		}

		userID, err := r.app.Auth.Verify(token)
		if err != nil {
			slog.Warn("invalid bearer token",
				"error", err,
				"request_id", middleware.GetRequestID(req.Context()),
			)
			handlers.Unauthorized(w, req, "invalid or expired token")
			return
		}

		ctx := context.WithValue(req.Context(), handlers.ContextKeyUserID, userID)
		next(w, req.WithContext(ctx))
	}
}

// Health check handlers
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	r.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.app.Ready != nil {
		if err := r.app.Ready(req.Context()); err != nil {
			slog.Error("storage health check failed",
				"error", err,
				"request_id", middleware.GetRequestID(req.Context()),
			)
			r.jsonResponse(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"checks": map[string]string{
					"storage": "unhealthy",
				},
			})
			return
		}
	}

	r.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": map[string]string{
			"storage": "healthy",
		},
	})
}

// Helper for JSON responses
func (r *Router) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
