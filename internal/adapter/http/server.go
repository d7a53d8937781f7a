// Package http exposes the raster retrieval service over HTTP: job
// submission plus health, readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

// maxRequestBody caps the job request document, masks included.
const maxRequestBody = 8 << 20

// JobRunner executes one retrieval job and reports the per-dataset outcome.
type JobRunner interface {
	Run(ctx context.Context, req domain.JobRequest) (domain.JobResult, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the job endpoint alongside health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	runner     JobRunner
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /jobs, /healthz, /readyz, and
// /metrics routes.
func NewServer(addr string, runner JobRunner, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		runner: runner,
		logger: logger,
	}

	mux.HandleFunc("POST /jobs", s.handleJob)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleJob runs a retrieval job synchronously and streams the archive back.
// The job summary travels in the X-Job-Summary header so the body can stay a
// plain zip stream.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	var req domain.JobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	tmpDir, err := os.MkdirTemp("", "raster-archive-*")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "allocate archive space"})
		return
	}
	defer os.RemoveAll(tmpDir)
	req.OutputPath = filepath.Join(tmpDir, "rasters.zip")

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.logger.Warn("job failed", "job_id", result.JobID, "error", err)
		writeJobError(w, result, err)
		return
	}

	f, err := os.Open(result.ArchivePath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "open archive"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "rasters-"+result.JobID+".zip"))
	w.Header().Set("X-Job-Id", result.JobID)
	if summary, err := json.Marshal(result); err == nil {
		w.Header().Set("X-Job-Summary", string(summary))
	}
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("archive stream interrupted", "job_id", result.JobID, "error", err)
	}
}

// writeJobError maps pipeline failures to HTTP statuses: the caller's fault
// maps to 4xx, upstream service trouble to 502, everything else to 500.
func writeJobError(w http.ResponseWriter, result domain.JobResult, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoTilesFound), errors.Is(err, domain.ErrNoRastersFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCatalogLookup), errors.Is(err, domain.ErrDownload):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"job_id": result.JobID,
		"result": result,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
