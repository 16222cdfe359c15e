// Package api exposes the status of a running flow of jobs over HTTP,
// alongside the Prometheus metrics endpoint.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// JobView is the wire representation of one supervised job.
type JobView struct {
	ID       int      `json:"id"`
	RunID    string   `json:"run_id,omitempty"`
	Name     string   `json:"name"`
	Workdir  string   `json:"workdir"`
	Status   string   `json:"status"`
	QueueID  string   `json:"queue_id,omitempty"`
	ExitCode int      `json:"exit_code"`
	History  []string `json:"history,omitempty"`
}

// Server serves job status snapshots produced by the list function. The
// function is called per request; it must be safe for concurrent use.
type Server struct {
	router *mux.Router
	list   func() []JobView
	log    *zap.Logger
}

// NewServer builds the status server. When gatherer is nil the metrics
// endpoint is omitted.
func NewServer(list func() []JobView, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		router: mux.NewRouter(),
		list:   list,
		log:    log,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/jobs", s.handleJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.list())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}

	for _, job := range s.list() {
		if job.ID == id {
			s.writeJSON(w, http.StatusOK, job)
			return
		}
	}
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}
