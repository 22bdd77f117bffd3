package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/scheduler"
	"github.com/albachteng/schedcore/internal/trigger"
)

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.Registry.Get(req.Work)
	if err != nil {
		http.Error(w, fmt.Sprintf("unknown work: %s", req.Work), http.StatusBadRequest)
		return
	}

	var timeout time.Duration
	if req.Timeout != "" {
		timeout, err = time.ParseDuration(req.Timeout)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid timeout: %v", err), http.StatusBadRequest)
			return
		}
	}

	misfire, err := jobs.ParseMisfirePolicy(req.MisfirePolicy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	trig, err := req.Trigger.Build(time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := jobs.Job{
		ID:           jobs.ID(req.JobID),
		Name:         req.Name,
		Run:          run,
		Timeout:      timeout,
		Misfire:      misfire,
		AllowOverlap: req.AllowOverlap,
		MaxRetries:   req.MaxRetries,
	}

	entryID, err := s.Scheduler.Register(job, trig)
	if err != nil {
		http.Error(w, err.Error(), registerStatus(err))
		return
	}

	s.Logger.Info("job registered",
		"entry_id", entryID,
		"job_id", job.ID,
		"work", req.Work)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(RegisterResponse{
		EntryID: entryID,
		Status:  "registered",
	})
}

func registerStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrDuplicateJobID):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrSchedulerStopped), errors.Is(err, scheduler.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, jobs.ErrInvalidJob),
		errors.Is(err, trigger.ErrInvalidSpec),
		errors.Is(err, scheduler.ErrNoFutureOccurrence):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := scheduler.EntryID(r.PathValue("id"))

	snap, err := s.Scheduler.Lookup(id)
	if err != nil {
		if errors.Is(err, scheduler.ErrEntryNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Scheduler.Entries()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	stateFilter := r.URL.Query().Get("state")
	if stateFilter != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.State == scheduler.State(stateFilter) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := scheduler.EntryID(r.PathValue("id"))

	if err := s.Scheduler.Cancel(id); err != nil {
		if errors.Is(err, scheduler.ErrEntryNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.Logger.Info("entry cancelled", "entry_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "execution history not available", http.StatusNotImplemented)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	execs, err := s.History.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(execs)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK\n")
}
