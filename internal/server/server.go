// Package server exposes the question pipeline over HTTP. This is the
// one boundary where failures carry machine-readable status codes; inside
// the pipeline every failure is natural language.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cortexre/internal/agent"
	"cortexre/internal/config"
	"cortexre/internal/portfolio"
)

// Server wires the agent service and the portfolio store behind the API.
type Server struct {
	cfg    *config.Config
	agent  *agent.AgentService
	store  *portfolio.Store
	logger *zap.Logger
}

// New builds a server. logger must be non-nil.
func New(cfg *config.Config, svc *agent.AgentService, store *portfolio.Store, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, agent: svc, store: store, logger: logger}
}

// Handler returns the API routes with request logging attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/properties", s.handleProperties)
	mux.HandleFunc("GET /api/eda/stats", s.handleStats)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  serverDuration(s.cfg.Server.ReadTimeout, 30*time.Second),
		WriteTimeout: serverDuration(s.cfg.Server.WriteTimeout, 5*time.Minute),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			serverDuration(s.cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "missing_query", "query is required")
		return
	}

	resp, err := s.agent.Submit(r.Context(), req.Query, req.ThreadID)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal_error", "query processing failed")
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		ThreadID:    resp.ThreadID,
		Answer:      resp.Answer,
		Blocked:     resp.Blocked,
		BlockReason: resp.BlockReason,
		Steps:       resp.Steps,
	})
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Dataset()
	s.writeJSON(w, http.StatusOK, PropertiesResponse{Properties: ds.Properties()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	engine := portfolio.NewEngine(s.store.Dataset())
	s.writeJSON(w, http.StatusOK, engine.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Records: s.store.Dataset().Len(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func serverDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
