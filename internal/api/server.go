package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/clawinfra/clawrouter/internal/cache"
	"github.com/clawinfra/clawrouter/internal/config"
	"github.com/clawinfra/clawrouter/internal/engine"
	"github.com/clawinfra/clawrouter/internal/registry"
	"github.com/clawinfra/clawrouter/internal/security"
	"github.com/clawinfra/clawrouter/internal/session"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

// appState is everything derived from one config document. Config saves
// build a fresh appState and publish it atomically; in-flight requests
// keep the one they captured at entry.
type appState struct {
	snap *engine.Snapshot
	auth *security.Auth
}

// Server is the HTTP gateway: the routing endpoint plus the management
// API.
type Server struct {
	port       int
	configPath string
	state      atomic.Pointer[appState]
	engine     *engine.Engine
	telemetry  *telemetry.Store
	sessions   *session.Store
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer wires the gateway around an initial config.
func NewServer(
	cfg *config.Config,
	configPath string,
	eng *engine.Engine,
	store *telemetry.Store,
	sessions *session.Store,
	logger *slog.Logger,
) (*Server, error) {
	s := &Server{
		port:       cfg.Server.Port,
		configPath: configPath,
		engine:     eng,
		telemetry:  store,
		sessions:   sessions,
		logger:     logger.With("component", "api"),
	}
	if err := s.publish(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// publish validates cfg, rebuilds the derived state, and swaps it in.
func (s *Server) publish(cfg *config.Config) error {
	reg, err := registry.New(cfg)
	if err != nil {
		return err
	}
	st := &appState{
		snap: &engine.Snapshot{
			Config:   cfg,
			Registry: reg,
			Cache:    cache.New(cfg.Cache.CacheDir, cfg.Cache.TTLSeconds, s.logger),
		},
		auth: security.New(cfg.Security),
	}
	s.state.Store(st)
	return nil
}

// current returns the state snapshot for this request.
func (s *Server) current() *appState {
	return s.state.Load()
}

// Snapshot exposes the current engine snapshot (used by the janitor).
func (s *Server) Snapshot() *engine.Snapshot {
	return s.current().snap
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/logs/stream", s.handleLogStream)
	mux.HandleFunc("/api/cache/purge", s.handleCachePurge)
	mux.HandleFunc("/api/auth/token", s.handleAuthToken)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("gateway starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware adds CORS headers for the dashboard frontend.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
