// Package server exposes the control API, the live preview and the
// dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/config"
	"github.com/raaihank/frame-sentinel/internal/logger"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/store"
	"github.com/raaihank/frame-sentinel/internal/stream"
	"github.com/raaihank/frame-sentinel/internal/web"
	"github.com/raaihank/frame-sentinel/internal/websocket"
)

// Version is reported by /info
const Version = "0.1.0"

// PresetStore reads stored presets
type PresetStore interface {
	BlurRulePresets(ctx context.Context) ([]store.BlurRulePreset, error)
	BlurRulePreset(ctx context.Context, name string) (*store.BlurRulePreset, error)
	KeywordLists(ctx context.Context) ([]store.KeywordList, error)
	KeywordList(ctx context.Context, name string) (*store.KeywordList, error)
}

// SessionStats reads persisted per-session counts
type SessionStats interface {
	DetectionStats(ctx context.Context, sessionID int64) (map[string]int64, error)
}

// LiveCounters reads the live per-session counters
type LiveCounters interface {
	Counts(ctx context.Context, sessionID int64) (map[string]int64, error)
}

// RunnerStats reads the in-process frame loop metrics
type RunnerStats interface {
	Stats() stream.Stats
	SessionID() int64
}

// Deps are the optional collaborators of the server. Nil fields disable
// the routes or fallbacks that need them.
type Deps struct {
	Presets      PresetStore
	Sessions     SessionStats
	Counters     LiveCounters
	Runner       RunnerStats
	Preview      *stream.Preview
	Capabilities stream.Capabilities
}

// Server represents the HTTP control server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	policy  *policy.Store
	wsHub   *websocket.Hub
	deps    Deps
	limiter *RateLimiter
	router  *mux.Router
	server  *http.Server
	started time.Time
}

// New creates a new server instance. hub may be nil when WebSocket
// streaming is disabled.
func New(cfg *config.Config, log *logger.Logger, snapshots *policy.Store, hub *websocket.Hub, deps Deps) *Server {
	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		policy:  snapshots,
		wsHub:   hub,
		deps:    deps,
		limiter: NewRateLimiter(cfg.RateLimit),
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/frame.jpg", s.handleFrame).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/presets/rules", s.handleListRulePresets).Methods(http.MethodGet)
	api.HandleFunc("/presets/keywords", s.handleListKeywordLists).Methods(http.MethodGet)

	api.Handle("/config", s.rateLimited(s.handleUpdateConfig)).Methods(http.MethodPut)
	api.Handle("/presets/rules/{name}/apply", s.rateLimited(s.handleApplyRulePreset)).Methods(http.MethodPost)
	api.Handle("/presets/keywords/{name}/apply", s.rateLimited(s.handleApplyKeywordList)).Methods(http.MethodPost)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting Frame-Sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket", s.wsHub != nil),
		zap.Bool("presets", s.deps.Presets != nil),
	)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve runs the server until ctx is cancelled, then shuts it down
// gracefully. Idle rate limit buckets are pruned while it runs.
func (s *Server) Serve(ctx context.Context) error {
	go s.limiter.RunCleanup(ctx, 30*time.Minute)

	errs := make(chan error, 1)
	go func() { errs <- s.Start() }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	return <-errs
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Frame-Sentinel server")
	return s.server.Shutdown(ctx)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
