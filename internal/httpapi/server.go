// Package httpapi is the thin JSON surface over the engine and the
// persistence collaborator. It renders nothing; the mobile app and the
// spreadsheet export are the real consumers.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tmaly1980/banked/internal/core"
	"github.com/tmaly1980/banked/internal/engine"
	"github.com/tmaly1980/banked/internal/storage"
)

// Notifier publishes record mutations; nil-able so the service degrades
// to local-only refresh when AMQP is not configured.
type Notifier interface {
	PublishRecordChange(ctx context.Context, kind core.EventKind, recordID, op string) error
}

type Server struct {
	repo        *storage.Repository
	aggregators map[core.EventKind]*engine.Aggregator
	notifier    Notifier
	userID      string
	logger      *slog.Logger
}

func NewServer(addr string, repo *storage.Repository, aggregators map[core.EventKind]*engine.Aggregator, notifier Notifier, userID string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		repo:        repo,
		aggregators: aggregators,
		notifier:    notifier,
		userID:      userID,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{kind}/instances", s.handleInstances)
	mux.HandleFunc("POST /api/{kind}/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/{kind}/records", s.handleCreateRecord)
	mux.HandleFunc("PUT /api/{kind}/records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /api/{kind}/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("POST /api/{kind}/records/{id}/paid", s.handleMarkPaid)
	mux.HandleFunc("POST /api/{kind}/templates", s.handleCreateTemplate)
	mux.HandleFunc("PUT /api/{kind}/templates/{id}", s.handleUpdateTemplate)
	mux.HandleFunc("DELETE /api/{kind}/templates/{id}", s.handleDeleteTemplate)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:           addr,
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
}

// aggregatorFor resolves the {kind} path segment, writing a 404 for
// kinds the service does not host.
func (s *Server) aggregatorFor(w http.ResponseWriter, r *http.Request) (*engine.Aggregator, bool) {
	kind := core.EventKind(r.PathValue("kind"))
	agg, ok := s.aggregators[kind]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown event kind")
		return nil, false
	}
	return agg, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
