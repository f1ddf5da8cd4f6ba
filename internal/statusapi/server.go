// Package statusapi exposes a small local HTTP surface for liveness probes
// and operators: is the probe up, is it connected, what is it running.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Status is the snapshot reported by /api/status.
type Status struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Connected  bool   `json:"connected"`
	Pairs      int    `json:"pairs"`
	QueueDepth int    `json:"queue_depth"`
}

// Source supplies the current runtime snapshot.
type Source interface {
	Status() Status
}

type Server struct {
	Logger *zap.Logger
	Source Source
}

func NewServer(l *zap.Logger, src Source) *Server {
	return &Server{Logger: l, Source: src}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/status", s.handleStatus)

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Source.Status()); err != nil {
		s.Logger.Warn("status_encode_error", zap.Error(err))
	}
}
