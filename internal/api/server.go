package api

import (
	"log/slog"
	"net/http"

	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/scheduler"
	"github.com/albachteng/schedcore/internal/sink"
)

// Server exposes the scheduler over HTTP. It is a thin adapter: every
// decision beyond decoding and status-code mapping lives in the scheduler.
type Server struct {
	Scheduler *scheduler.Scheduler
	Registry  *jobs.Registry

	// History is optional; when nil, /executions reports 501.
	History sink.Reader

	Logger *slog.Logger
}

func NewServer(sched *scheduler.Scheduler, registry *jobs.Registry, history sink.Reader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Scheduler: sched,
		Registry:  registry,
		History:   history,
		Logger:    logger,
	}
}

// Routes builds the HTTP mux for this server.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("POST /jobs", s.HandleRegister)
	mux.HandleFunc("GET /jobs", s.HandleListEntries)
	mux.HandleFunc("GET /jobs/{id}", s.HandleGetEntry)
	mux.HandleFunc("DELETE /jobs/{id}", s.HandleCancel)
	mux.HandleFunc("GET /executions", s.HandleListExecutions)
	return mux
}
