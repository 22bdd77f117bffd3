package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/albachteng/schedcore/internal/clock"
	"github.com/albachteng/schedcore/internal/executor"
	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/sink"
	"github.com/albachteng/schedcore/internal/trigger"
)

const (
	defaultMisfireGrace   = 5 * time.Second
	defaultOverlapBackoff = 100 * time.Millisecond
)

type Config struct {
	// Workers bounds how many jobs execute simultaneously.
	Workers int

	// QueueSize bounds how many due occurrences can wait for a free worker.
	QueueSize int

	// MisfireGrace is how late a firing may be before the job's misfire
	// policy applies.
	MisfireGrace time.Duration

	// OverlapBackoff is how long a due occurrence is pushed back when the
	// same job is still running and overlap is disallowed.
	OverlapBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MisfireGrace <= 0 {
		c.MisfireGrace = defaultMisfireGrace
	}
	if c.OverlapBackoff <= 0 {
		c.OverlapBackoff = defaultOverlapBackoff
	}
	return c
}

// Scheduler owns the timer heap and entry table. A single dispatch loop
// goroutine performs every state mutation; registration, cancellation, and
// lookup are serialized through a request channel, and execution outcomes
// arrive on a completion channel consumed by the same loop. Nothing else
// locks, because nothing else writes.
type Scheduler struct {
	cfg    Config
	clk    clock.Clock
	exec   *executor.Executor
	logger *slog.Logger

	requests chan request
	results  chan executor.Result
	stopCh   chan struct{}
	loopDone chan struct{}
	stopped  chan struct{}

	started    atomic.Bool
	startOnce  sync.Once
	stopOnce   sync.Once
	cancelRuns context.CancelFunc

	// Everything below is owned by the dispatch loop.
	heap      fireHeap
	entries   map[EntryID]*entry
	active    map[jobs.ID]EntryID
	seq       uint64
	corrupted bool
}

func New(cfg Config, clk clock.Clock, resultSink sink.Sink, logger *slog.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}

	exec := executor.New(cfg.Workers, cfg.QueueSize, clk, resultSink, logger)

	return &Scheduler{
		cfg:    cfg,
		clk:    clk,
		exec:   exec,
		logger: logger,

		requests: make(chan request),
		// Sized past the executor's full capacity so completion delivery can
		// never block a worker.
		results:  make(chan executor.Result, exec.Capacity()+1),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
		stopped:  make(chan struct{}),

		entries: make(map[EntryID]*entry),
		active:  make(map[jobs.ID]EntryID),
	}
}

// Start launches the executor pool and the dispatch loop. Jobs registered
// before Start are rejected with ErrNotStarted.
//
// ctx scopes job execution only: cancelling it cancels running job bodies but
// leaves the scheduler accepting and dispatching work. Stopping the scheduler
// itself is Shutdown's job.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancelRuns = cancel
		s.exec.Start(runCtx)
		go s.loop()
		s.started.Store(true)
	})
}

// Shutdown stops dispatching, then drains in-flight and queued executions for
// up to drainTimeout. Runs still going at the deadline are cancelled
// cooperatively and abandoned. Idempotent; later calls return the first
// outcome.
func (s *Scheduler) Shutdown(drainTimeout time.Duration) error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.loopDone

		if !s.exec.Drain(drainTimeout) {
			s.logger.Warn("drain timeout exceeded, cancelling in-flight jobs",
				"drain_timeout", drainTimeout)
			err = fmt.Errorf("shutdown: drain timeout %s exceeded", drainTimeout)
		}
		s.cancelRuns()
		close(s.stopped)
		s.logger.Info("scheduler stopped")
	})
	return err
}

type reqKind int

const (
	reqRegister reqKind = iota
	reqCancel
	reqLookup
	reqList
)

type request struct {
	kind  reqKind
	job   jobs.Job
	trig  trigger.Trigger
	id    EntryID
	reply chan response
}

type response struct {
	id    EntryID
	snap  Snapshot
	snaps []Snapshot
	err   error
}

// Register schedules job according to trig and returns the new entry's id.
// The first fire time is computed immediately; a trigger with no future
// occurrence is rejected.
func (s *Scheduler) Register(job jobs.Job, trig trigger.Trigger) (EntryID, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if trig == nil {
		return "", fmt.Errorf("%w: nil trigger", trigger.ErrInvalidSpec)
	}

	resp, err := s.send(request{kind: reqRegister, job: job, trig: trig})
	if err != nil {
		return "", err
	}
	return resp.id, resp.err
}

// Cancel marks the entry cancelled. A pending entry leaves the schedule
// immediately; a running entry finishes its in-flight execution but is never
// rescheduled. Cancelling an already-terminal entry is a no-op.
func (s *Scheduler) Cancel(id EntryID) error {
	resp, err := s.send(request{kind: reqCancel, id: id})
	if err != nil {
		return err
	}
	return resp.err
}

// Lookup returns a copy of the entry's current state.
func (s *Scheduler) Lookup(id EntryID) (Snapshot, error) {
	resp, err := s.send(request{kind: reqLookup, id: id})
	if err != nil {
		return Snapshot{}, err
	}
	return resp.snap, resp.err
}

// Entries returns snapshots of every entry, in registration order.
func (s *Scheduler) Entries() ([]Snapshot, error) {
	resp, err := s.send(request{kind: reqList})
	if err != nil {
		return nil, err
	}
	return resp.snaps, resp.err
}

func (s *Scheduler) send(req request) (response, error) {
	if !s.started.Load() {
		return response{}, ErrNotStarted
	}

	req.reply = make(chan response, 1)

	select {
	case s.requests <- req:
	case <-s.stopped:
		return response{}, ErrSchedulerStopped
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-s.stopped:
		return response{}, ErrSchedulerStopped
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	for {
		if s.corrupted {
			s.logger.Error("scheduler state corrupted, shutting down dispatch")
			s.drainRequests()
			return
		}

		// Dispatching due nodes bypasses the select below, so a stop that
		// interrupted a saturated submit is checked here too.
		select {
		case <-s.stopCh:
			s.drainRequests()
			return
		default:
		}

		var timer clock.Timer
		var fireCh <-chan time.Time

		if top, ok := s.heap.peek(); ok {
			delay := top.fireAt.Sub(s.clk.Now())
			if delay <= 0 {
				s.dispatch(s.heap.popEarliest())
				continue
			}
			timer = s.clk.NewTimer(delay)
			fireCh = timer.C()
		}

		select {
		case <-fireCh:
		case req := <-s.requests:
			s.handleRequest(req)
		case res := <-s.results:
			s.onResult(res)
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			s.drainRequests()
			return
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// drainRequests rejects any callers that raced the loop's exit so no sender
// is left waiting on a reply.
func (s *Scheduler) drainRequests() {
	for {
		select {
		case req := <-s.requests:
			req.reply <- response{err: ErrSchedulerStopped}
		default:
			return
		}
	}
}

func (s *Scheduler) handleRequest(req request) {
	switch req.kind {
	case reqRegister:
		req.reply <- s.register(req.job, req.trig)
	case reqCancel:
		req.reply <- response{err: s.cancel(req.id)}
	case reqLookup:
		if e, ok := s.entries[req.id]; ok {
			req.reply <- response{snap: e.snapshot()}
		} else {
			req.reply <- response{err: fmt.Errorf("%w: %s", ErrEntryNotFound, req.id)}
		}
	case reqList:
		req.reply <- response{snaps: s.listEntries()}
	}
}

func (s *Scheduler) register(job jobs.Job, trig trigger.Trigger) response {
	if _, exists := s.active[job.ID]; exists {
		return response{err: fmt.Errorf("%w: %s", ErrDuplicateJobID, job.ID)}
	}

	now := s.clk.Now()
	first, ok := trig.Next(now)
	if !ok {
		return response{err: fmt.Errorf("%w: job %s", ErrNoFutureOccurrence, job.ID)}
	}

	e := &entry{
		id:        EntryID(uuid.NewString()),
		job:       job,
		trig:      trig,
		createdAt: now,
	}
	s.seq++
	e.seq = s.seq

	s.entries[e.id] = e
	s.active[job.ID] = e.id
	s.pushNode(e, first, first, nodeOccurrence)

	s.logger.Info("job registered",
		"job_id", job.ID,
		"entry_id", e.id,
		"first_fire", first)

	return response{id: e.id}
}

func (s *Scheduler) cancel(id EntryID) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if e.isTerminal() || e.cancelRequested {
		return nil
	}

	if e.inFlight > 0 {
		// Let the run finish; completion handling finalizes the state.
		e.cancelRequested = true
	} else {
		e.terminal = StateCancelled
		delete(s.active, e.job.ID)
	}

	s.logger.Info("entry cancelled",
		"job_id", e.job.ID,
		"entry_id", e.id,
		"was_running", e.inFlight > 0)
	return nil
}

func (s *Scheduler) listEntries() []Snapshot {
	snaps := make([]Snapshot, 0, len(s.entries))
	for _, e := range s.entries {
		snaps = append(snaps, e.snapshot())
	}
	// Registration order; map iteration is not deterministic.
	for i := 1; i < len(snaps); i++ {
		for j := i; j > 0 && s.entries[snaps[j].EntryID].seq < s.entries[snaps[j-1].EntryID].seq; j-- {
			snaps[j], snaps[j-1] = snaps[j-1], snaps[j]
		}
	}
	return snaps
}

// dispatch handles one due heap node.
func (s *Scheduler) dispatch(n *node) {
	e, ok := s.entries[n.entryID]
	if !ok {
		// The heap referenced an entry the table has never seen. That can
		// only mean corrupted internal state, which is not recoverable.
		s.logger.Error("heap node references unknown entry",
			"entry_id", n.entryID)
		s.corrupted = true
		return
	}
	e.pendingNodes--

	if e.isTerminal() || e.cancelRequested {
		return
	}

	now := s.clk.Now()

	// A due occurrence must not start while the same job is still running,
	// unless overlap is explicitly allowed. Push it back a little and let the
	// loop move on; it is re-examined after the backoff, not dropped.
	if !e.job.AllowOverlap && e.inFlight > 0 {
		s.pushNode(e, now.Add(s.cfg.OverlapBackoff), n.scheduledAt, n.kind)
		return
	}

	if n.kind == nodeRetry {
		s.startRun(e, n, now, false)
		return
	}

	misfired := now.Sub(n.scheduledAt) > s.cfg.MisfireGrace
	if misfired {
		e.misfired = true
		switch e.job.Misfire {
		case jobs.MisfireSkip:
			s.logger.Warn("misfired occurrence skipped",
				"job_id", e.job.ID,
				"entry_id", e.id,
				"scheduled_at", n.scheduledAt,
				"late_by", now.Sub(n.scheduledAt))
			s.scheduleNext(e, now)
			s.finalizeIfDone(e)
			return
		case jobs.MisfireDefer:
			// Run it, but compute the next occurrence from completion time
			// so the whole schedule shifts instead of bunching up.
			e.deferNext = true
		}
	}

	if !e.deferNext {
		// Next occurrence keeps nominal cadence; when we are running late,
		// boundaries that already passed are skipped, not backlogged.
		base := n.scheduledAt
		if now.After(base) {
			base = now
		}
		s.scheduleNext(e, base)
	}

	s.startRun(e, n, now, misfired)
}

func (s *Scheduler) scheduleNext(e *entry, after time.Time) {
	next, ok := e.trig.Next(after)
	if !ok {
		return
	}
	s.pushNode(e, next, next, nodeOccurrence)
}

func (s *Scheduler) pushNode(e *entry, fireAt, scheduledAt time.Time, kind nodeKind) {
	s.seq++
	s.heap.push(&node{
		fireAt:      fireAt,
		scheduledAt: scheduledAt,
		seq:         s.seq,
		entryID:     e.id,
		kind:        kind,
	})
	if e.pendingNodes == 0 || fireAt.Before(e.nextFire) {
		e.nextFire = fireAt
	}
	e.pendingNodes++
}

func (s *Scheduler) startRun(e *entry, n *node, now time.Time, misfired bool) {
	e.inFlight++
	e.attempts++

	task := executor.Task{
		EntryID:     string(e.id),
		Job:         e.job,
		Attempt:     e.attempts,
		ScheduledAt: n.scheduledAt,
		Misfired:    misfired,
		Done: func(r executor.Result) {
			s.results <- r
		},
	}
	if !s.submit(task) {
		// Shutdown interrupted the handoff. Put the occurrence back so the
		// final snapshot stays truthful about what never ran.
		e.inFlight--
		e.attempts--
		s.pushNode(e, now, n.scheduledAt, n.kind)
	}
}

// submit hands a task to the executor. While the pool is saturated the loop
// keeps consuming completions, which is what frees pool capacity, so this can
// wait without deadlocking. A stop signal interrupts the wait so shutdown is
// still bounded when the pool never frees up; the caller keeps the task.
func (s *Scheduler) submit(task executor.Task) bool {
	intake := s.exec.Intake()
	for {
		select {
		case intake <- task:
			return true
		case res := <-s.results:
			s.onResult(res)
		case <-s.stopCh:
			return false
		}
	}
}

func (s *Scheduler) onResult(res executor.Result) {
	e, ok := s.entries[EntryID(res.Task.EntryID)]
	if !ok {
		s.logger.Error("completion for unknown entry",
			"entry_id", res.Task.EntryID)
		s.corrupted = true
		return
	}

	e.inFlight--
	e.runs++
	outcome := res.Outcome
	e.lastOutcome = &outcome
	e.lastStarted = res.StartedAt
	e.lastFinished = res.FinishedAt

	now := s.clk.Now()

	if e.cancelRequested {
		if e.inFlight == 0 {
			e.terminal = StateCancelled
			delete(s.active, e.job.ID)
		}
		return
	}

	if outcome.OK() {
		e.attempts = 0
		e.misfired = false
		if e.deferNext {
			e.deferNext = false
			s.scheduleNext(e, now)
		}
		s.finalizeIfDone(e)
		return
	}

	// Failed or timed out.
	if e.attempts <= e.job.MaxRetries {
		delay := retryBackoff(e.attempts - 1)
		s.logger.Warn("job run failed, will retry",
			"job_id", e.job.ID,
			"entry_id", e.id,
			"status", outcome.Status,
			"error", outcome.Err,
			"attempt", e.attempts,
			"max_retries", e.job.MaxRetries,
			"retry_in", delay)
		at := now.Add(delay)
		s.pushNode(e, at, at, nodeRetry)
		return
	}

	// This occurrence is abandoned. A recurring entry waits for its next
	// occurrence with a clean attempt counter; a one-shot has nothing left
	// and fails terminally.
	e.attempts = 0
	if e.deferNext {
		e.deferNext = false
		s.scheduleNext(e, now)
	}
	if e.pendingNodes == 0 && e.inFlight == 0 {
		e.terminal = StateFailed
		delete(s.active, e.job.ID)
		s.logger.Error("entry failed terminally",
			"job_id", e.job.ID,
			"entry_id", e.id,
			"status", outcome.Status,
			"error", outcome.Err)
	} else {
		s.logger.Error("occurrence abandoned after retries",
			"job_id", e.job.ID,
			"entry_id", e.id,
			"status", outcome.Status,
			"error", outcome.Err)
	}
}

// finalizeIfDone marks an entry Completed once nothing is scheduled and
// nothing is running.
func (s *Scheduler) finalizeIfDone(e *entry) {
	if e.pendingNodes == 0 && e.inFlight == 0 && !e.isTerminal() {
		e.terminal = StateCompleted
		delete(s.active, e.job.ID)
		s.logger.Info("entry completed",
			"job_id", e.job.ID,
			"entry_id", e.id,
			"runs", e.runs)
	}
}
