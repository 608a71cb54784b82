// Package api implements the status HTTP server: health, loop state,
// and the cycle journal. It is read-only introspection; the agent loop
// does not depend on it and runs fine with the server disabled.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/halstead/scribe/internal/buildinfo"
	"github.com/halstead/scribe/internal/journal"
	"github.com/halstead/scribe/internal/supervisor"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Pinger reports whether a backend is reachable. Satisfied by
// coral.Session and llm.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the status HTTP server.
type Server struct {
	address string
	port    int
	sup     *supervisor.Supervisor
	logger  *slog.Logger
	server  *http.Server

	journal *journal.Store
	session Pinger
	llm     Pinger
}

// NewServer creates a status server.
func NewServer(address string, port int, sup *supervisor.Supervisor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		sup:     sup,
		logger:  logger,
	}
}

// SetJournal enables the journal endpoints.
func (s *Server) SetJournal(j *journal.Store) {
	s.journal = j
}

// SetProbes enables backend reachability checks on /health. Either
// probe may be nil; nil probes are skipped.
func (s *Server) SetProbes(session, llm Pinger) {
	s.session = session
	s.llm = llm
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/journal", s.handleJournal)
	mux.HandleFunc("GET /v1/journal/stats", s.handleJournalStats)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting status server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Scribe",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

// handleHealth pings the session and LLM backends with a short
// deadline. A failing probe degrades the response to 503 so load
// balancers and monitors see the outage, not just the process.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	probe := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	probe("session", s.session)
	probe("llm", s.llm)

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"status": status,
		"checks": checks,
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// StatusResponse reports the loop state and counters.
type StatusResponse struct {
	State     string            `json:"state"`
	Cycles    int64             `json:"cycles"`
	Failures  int64             `json:"failures"`
	LastError string            `json:"last_error,omitempty"`
	Uptime    string            `json:"uptime"`
	Build     map[string]string `json:"build"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:  "stopped",
		Uptime: buildinfo.Uptime().Truncate(time.Second).String(),
		Build:  buildinfo.Info(),
	}
	if s.sup != nil {
		resp.State = s.sup.State().String()
		resp.Cycles = s.sup.Cycles()
		resp.Failures = s.sup.Failures()
		resp.LastError = s.sup.LastError()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	limit := parseIntParam(r, "limit", 20)
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"count":   len(entries),
		"entries": entries,
	}, s.logger)
}

func (s *Server) handleJournalStats(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	total, failed, err := s.journal.Stats(r.Context())
	if err != nil {
		s.logger.Error("journal stats failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"total":  total,
		"failed": failed,
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
