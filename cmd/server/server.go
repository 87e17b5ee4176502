package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dreamup/lotto-agent/internal/app"
	"github.com/dreamup/lotto-agent/internal/db"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	version = "0.1.0"

	defaultLimit = 20
	maxLimit     = 100
)

// RunStore is the read side of the run history
type RunStore interface {
	GetRun(id string) (*db.RunRecord, error)
	ListRuns(state string, limit, offset int) ([]db.RunRecord, error)
	CountRuns(state string) (int, error)
}

// Launcher performs one run
type Launcher func(ctx context.Context) (*app.Result, error)

// RunList is the paginated run listing
type RunList struct {
	Runs   []db.RunRecord `json:"runs"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// TriggerStatus reports the run started through the API
type TriggerStatus struct {
	Status    string    `json:"status"`
	RunID     string    `json:"runId,omitempty"`
	State     string    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Server exposes the run history and starts runs on request
type Server struct {
	store  RunStore
	launch Launcher
	logger *zap.Logger

	mu      sync.RWMutex
	trigger TriggerStatus
	running bool
	wg      sync.WaitGroup
}

func NewServer(store RunStore, launch Launcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:   store,
		launch:  launch,
		logger:  logger.Named("server"),
		trigger: TriggerStatus{Status: "idle"},
	}
}

// Router builds the HTTP routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.handleRunList).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.handleRunTrigger).Methods(http.MethodPost)
	r.HandleFunc("/api/runs/trigger", s.handleTriggerStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}", s.handleRunGet).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/report", s.handleRunReport).Methods(http.MethodGet)
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	return r
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": version,
		"time":    time.Now(),
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

// List runs, newest first
func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state := r.URL.Query().Get("state")

	runs, err := s.store.ListRuns(state, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	total, err := s.store.CountRuns(state)
	if err != nil {
		s.logger.Error("count runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count runs")
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	// the listing stays small; reports are fetched per run
	for i := range runs {
		runs[i].ReportData = ""
	}

	writeJSON(w, http.StatusOK, RunList{Runs: runs, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *db.RunRecord {
	id := mux.Vars(r)["id"]
	run, err := s.store.GetRun(id)
	if err != nil {
		s.logger.Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return nil
	}
	return run
}

// Get one run
func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if run := s.lookup(w, r); run != nil {
		run.ReportData = ""
		writeJSON(w, http.StatusOK, run)
	}
}

// Get the stored audit report of a run
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run := s.lookup(w, r)
	if run == nil {
		return
	}
	if run.ReportData == "" || run.ReportData == "null" {
		writeError(w, http.StatusNotFound, "report not ready")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(run.ReportData))
}

// Start a run in the background
func (s *Server) handleRunTrigger(w http.ResponseWriter, r *http.Request) {
	if s.launch == nil {
		writeError(w, http.StatusNotImplemented, "runs cannot be started from this server")
		return
	}

	s.mu.Lock()
	if s.running {
		status := s.trigger
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, status)
		return
	}
	s.running = true
	now := time.Now()
	s.trigger = TriggerStatus{Status: "running", StartedAt: now, UpdatedAt: now}
	status := s.trigger
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute()

	writeJSON(w, http.StatusAccepted, status)
}

// Status of the last run started through the API
func (s *Server) handleTriggerStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := s.trigger
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) execute() {
	defer s.wg.Done()

	status := "completed"
	var runErr error
	var res *app.Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		res, runErr = s.launch(context.Background())
	}()
	if runErr != nil {
		status = "failed"
		s.logger.Warn("triggered run failed", zap.Error(runErr))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.trigger.Status = status
	s.trigger.UpdatedAt = time.Now()
	if runErr != nil {
		s.trigger.Error = runErr.Error()
	}
	if res != nil && res.Run != nil {
		s.trigger.RunID = res.Run.ID
		s.trigger.State = string(res.Run.State)
	}
}

// Wait blocks until a triggered run has finished
func (s *Server) Wait() {
	s.wg.Wait()
}
