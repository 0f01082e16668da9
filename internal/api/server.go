// Package api is the HTTP surface: the push webhook plus run and ledger
// status endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"releasegate/internal/core"
	"releasegate/internal/ledger"
	"releasegate/internal/metrics"
	"releasegate/internal/queue"
	"releasegate/internal/storage"
	"releasegate/internal/store"
)

var logger = logrus.WithField("package", "api")

// Agent is a worker process that announced itself to the server.
type Agent struct {
	ID       string    `json:"id"`
	Host     string    `json:"host"`
	LastSeen time.Time `json:"last_seen"`
}

type Server struct {
	Workflow      *core.Workflow
	Queue         queue.EventQueue
	Deduper       queue.Deduper
	Store         store.RunStore
	LedgerPath    string              // "" disables /ledger routes
	Logs          *storage.LogStorage // nil disables step logs
	Metrics       *metrics.Metrics    // optional
	WebhookSecret string

	mu     sync.Mutex
	agents map[string]Agent
}

func NewServer(wf *core.Workflow, q queue.EventQueue, d queue.Deduper, s store.RunStore) *Server {
	return &Server{
		Workflow: wf,
		Queue:    q,
		Deduper:  d,
		Store:    s,
		agents:   make(map[string]Agent),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhooks/push", s.handlePush)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/ledger", s.handleRunLedger)
		r.Get("/{id}/steps/{n}/log", s.handleStepLog)
	})
	r.Get("/ledger/verify", s.handleVerifyLedger)

	r.Post("/agents/register", s.handleRegisterAgent)
	r.Get("/agents", s.handleListAgents)

	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}
	return r
}

// GET /runs?tag=v1.2.3&limit=20
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		runs []*core.Run
		err  error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		runs, err = s.Store.ListByTag(r.Context(), tag)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err = s.Store.List(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*core.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GET /runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /runs/{id}/steps/{n}/log returns the masked output of step n (1-based).
func (s *Server) handleStepLog(w http.ResponseWriter, r *http.Request) {
	if s.Logs == nil {
		writeError(w, http.StatusNotFound, "step logs disabled")
		return
	}
	run, err := s.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 || n > len(run.Steps) {
		writeError(w, http.StatusNotFound, "no such step")
		return
	}
	step := run.Steps[n-1]
	if step.LogPath == "" {
		writeError(w, http.StatusNotFound, "step has no log")
		return
	}
	output, err := s.Logs.ReadLog(step.LogPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, output)
}

// GET /runs/{id}/ledger
func (s *Server) handleRunLedger(w http.ResponseWriter, r *http.Request) {
	l, ok := s.openLedger(w)
	if !ok {
		return
	}
	entries := l.ForRun(chi.URLParam(r, "id"))
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /ledger/verify reads the file again so tampering on disk is caught.
func (s *Server) handleVerifyLedger(w http.ResponseWriter, _ *http.Request) {
	l, ok := s.openLedger(w)
	if !ok {
		return
	}
	if err := l.VerifyChain(); err != nil {
		writeError(w, http.StatusInternalServerError, "ledger verification failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"entries":   l.NextIndex(),
		"head_hash": l.LastHash(),
	})
}

func (s *Server) openLedger(w http.ResponseWriter) (*ledger.Ledger, bool) {
	if s.LedgerPath == "" {
		writeError(w, http.StatusNotFound, "ledger disabled")
		return nil, false
	}
	l, err := ledger.OpenLedger(s.LedgerPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot open ledger: "+err.Error())
		return nil, false
	}
	return l, true
}

// POST /agents/register
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var agent Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil || agent.ID == "" {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	agent.LastSeen = time.Now().UTC()

	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()

	logger.WithFields(logrus.Fields{"agent": agent.ID, "host": agent.Host}).Info("agent registered")
	writeJSON(w, http.StatusOK, agent)
}

// GET /agents
func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	agents := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.Unlock()
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	writeJSON(w, http.StatusOK, agents)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("cannot encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
