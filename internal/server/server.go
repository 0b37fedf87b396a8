// Package server exposes the demo HTTP surface: the status polling API,
// run control endpoints, and static serving of the artifact directory.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ethercoretech/avatar-walrus/internal/config"
	"github.com/ethercoretech/avatar-walrus/internal/coordinator"
	"github.com/ethercoretech/avatar-walrus/internal/status"
)

// Server serves the demo UI and control API.
type Server struct {
	cfg    *config.Config
	coord  *coordinator.Coordinator
	store  *status.Store
	logger *slog.Logger
	server *http.Server
}

// New creates the API server. The coordinator handles run lifecycle; the
// server is a thin translation layer and holds no run state of its own.
func New(cfg *config.Config, coord *coordinator.Coordinator, store *status.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		coord:  coord,
		store:  store,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/run-benchmark", s.handleRunBenchmark)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/check-image", s.handleCheckImage)
	mux.Handle("GET /static/", http.StripPrefix("/static/", noCache(http.FileServer(http.Dir(cfg.Workdir)))))

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// noCache disables caching on artifact responses. The versioned query token
// already defeats most caches; the headers cover clients that ignore it.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot().Payload())
}

func (s *Server) handleRunBenchmark(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Start(); err != nil {
		if errors.Is(err, coordinator.ErrAlreadyRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"detail": err.Error(),
			})
			return
		}
		s.logger.Error("run_start_failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Benchmark started",
		"status":  "running",
		"run_id":  s.coord.RunID(),
	})
}

// handleReset always reports success: cleanup is best-effort and the caller
// can do nothing useful with partial failures, which are logged instead.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	errs := s.coord.StopAndReset()
	if len(errs) > 0 {
		s.logger.Warn("reset_completed_with_errors", "errors", len(errs))
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Status reset and cleanup completed",
	})
}

func (s *Server) handleCheckImage(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.ArtifactPath()
	fi, err := os.Stat(path)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"exists": false,
			"path":   path,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists": true,
		"size":   fi.Size(),
		"path":   path,
	})
}

// Start starts the API server in a goroutine.
// Returns immediately. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("api_server_starting",
		"addr", s.server.Addr,
		"workdir", s.cfg.Workdir,
		"artifact", filepath.Base(s.cfg.ArtifactPath()),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("api_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
