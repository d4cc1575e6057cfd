package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/numopt/internal/config"
	"github.com/cwbudde/numopt/internal/objective"
	"github.com/cwbudde/numopt/internal/opt"
	"github.com/cwbudde/numopt/internal/store"
)

// maxConfigSize limits the size of a submitted configuration.
const maxConfigSize = 1 << 20

// Server runs optimization jobs submitted over HTTP.
type Server struct {
	jobManager *JobManager
	runs       *store.FSStore
	addr       string
	server     *http.Server
}

// NewServer creates a new HTTP server. Finished jobs are saved to runs
// unless it is nil.
func NewServer(addr string, runs *store.FSStore) *Server {
	s := &Server{
		jobManager: NewJobManager(),
		runs:       runs,
		addr:       addr,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's routes wrapped in its middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/objectives", s.handleObjectives)
	mux.HandleFunc("/api/v1/optimizers", s.handleOptimizers)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.jobManager.CancelAll()
	return s.server.Shutdown(ctx)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch {
	case (sub == "" || sub == "status") && r.Method == http.MethodGet:
		s.handleGetJobStatus(w, r, jobID)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleDeleteJob(w, r, jobID)
	case sub == "stream" && r.Method == http.MethodGet:
		s.handleJobStream(w, r, jobID)
	case sub == "cancel" && r.Method == http.MethodPost:
		s.handleCancelJob(w, r, jobID)
	case sub == "result" && r.Method == http.MethodGet:
		s.handleGetResult(w, r, jobID)
	case sub == "" || sub == "status" || sub == "stream" || sub == "cancel" || sub == "result":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs. The body is a problem
// configuration in YAML; JSON bodies are accepted as a subset of YAML.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigSize))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}
	cfg, err := config.ParseConfigYAML(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.cancel = cancel })

	go func() {
		defer cancel()
		runJob(ctx, s.jobManager, s.runs, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	eps := float64(0)
	if elapsed.Seconds() > 0 {
		eps = float64(job.Evaluations) / elapsed.Seconds()
	}

	response := map[string]interface{}{
		"id":                   job.ID,
		"state":                job.State,
		"objective":            job.Objective,
		"optimizer":            job.Optimizer,
		"steps":                job.Steps,
		"evaluations":          job.Evaluations,
		"initialValue":         job.InitialValue,
		"value":                job.Value,
		"converged":            job.Converged,
		"parameters":           job.Parameters,
		"elapsed":              elapsed.Seconds(),
		"evaluationsPerSecond": eps,
		"startTime":            job.StartTime,
		"endTime":              job.EndTime,
		"error":                job.Error,
	}
	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleDeleteJob handles DELETE /api/v1/jobs/:id; the stored run is kept.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.RemoveJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetResult handles GET /api/v1/jobs/:id/result, the stored run.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.runs == nil {
		http.Error(w, "Results are not stored", http.StatusNotFound)
		return
	}
	run, err := s.runs.LoadRun(jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type objectiveInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleObjectives handles GET /api/v1/objectives
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var infos []objectiveInfo
	for _, name := range objective.Names() {
		d, _ := objective.Describe(name)
		infos = append(infos, objectiveInfo{Name: name, Description: d})
	}
	writeJSON(w, http.StatusOK, infos)
}

type optimizerInfo struct {
	Name            string `json:"name"`
	DerivativeOrder int    `json:"derivativeOrder"`
}

// handleOptimizers handles GET /api/v1/optimizers
func (s *Server) handleOptimizers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var infos []optimizerInfo
	for _, name := range opt.Names() {
		order, _ := opt.DerivativeOrder(name)
		infos = append(infos, optimizerInfo{Name: name, DerivativeOrder: order})
	}
	writeJSON(w, http.StatusOK, infos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
