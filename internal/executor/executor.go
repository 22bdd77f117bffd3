package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albachteng/schedcore/internal/clock"
	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/sink"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Task is one due occurrence handed off by the dispatch loop.
type Task struct {
	EntryID     string
	Job         jobs.Job
	Attempt     int
	ScheduledAt time.Time
	Misfired    bool

	// Done is invoked exactly once with the result, after the sink has been
	// notified. It must not block: the scheduler backs it with a channel
	// sized to cover every task the executor can hold.
	Done func(Result)
}

// Result reports how one task execution ended.
type Result struct {
	Task       Task
	Outcome    jobs.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Executor runs tasks on a fixed pool of workers fed by a bounded intake
// channel. Due occurrences wait in the channel under backpressure; they are
// never dropped. Panics and errors from job bodies are contained here and
// converted to failure outcomes.
type Executor struct {
	workers   int
	queueSize int
	clk       clock.Clock
	sink      sink.Sink
	logger    *slog.Logger

	tasks chan Task
	wg    sync.WaitGroup
}

func New(workers, queueSize int, clk clock.Clock, resultSink sink.Sink, logger *slog.Logger) *Executor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		workers:   workers,
		queueSize: queueSize,
		clk:       clk,
		sink:      resultSink,
		logger:    logger,
		tasks:     make(chan Task, queueSize),
	}
}

// Capacity is the most tasks the executor can hold at once: queued plus one
// in flight per worker.
func (e *Executor) Capacity() int {
	return e.queueSize + e.workers
}

// Start launches the worker pool. ctx cancellation propagates to running job
// bodies; workers keep draining the intake channel until it is closed.
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func(workerID int) {
			defer e.wg.Done()
			logger := e.logger.With("worker_id", workerID)
			for task := range e.tasks {
				e.runOne(ctx, task, logger)
			}
		}(i)
	}
}

// Intake is the bounded submission channel. The dispatch loop selects on it
// so a saturated pool never deadlocks against completion delivery.
func (e *Executor) Intake() chan<- Task {
	return e.tasks
}

// Drain closes the intake channel and waits for queued and in-flight tasks to
// finish, up to timeout. Returns false if workers were still busy when the
// timeout expired.
func (e *Executor) Drain(timeout time.Duration) bool {
	close(e.tasks)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (e *Executor) runOne(ctx context.Context, task Task, logger *slog.Logger) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := e.clk.Now()

	bodyDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				bodyDone <- fmt.Errorf("panic: %v", r)
			}
		}()
		bodyDone <- task.Job.Run(runCtx)
	}()

	var outcome jobs.Outcome

	if task.Job.Timeout > 0 {
		timer := e.clk.NewTimer(task.Job.Timeout)
		select {
		case err := <-bodyDone:
			timer.Stop()
			outcome = outcomeFromErr(err)
		case <-timer.C():
			// Cooperative cancellation: the body sees runCtx close, but the
			// outcome is timed-out no matter when (or whether) it returns.
			cancel()
			outcome = jobs.TimedOut()
		}
	} else {
		outcome = outcomeFromErr(<-bodyDone)
	}

	finished := e.clk.Now()

	switch outcome.Status {
	case jobs.StatusSuccess:
		logger.Debug("job completed",
			"job_id", task.Job.ID,
			"entry_id", task.EntryID,
			"attempt", task.Attempt)
	case jobs.StatusTimedOut:
		logger.Warn("job timed out",
			"job_id", task.Job.ID,
			"entry_id", task.EntryID,
			"timeout", task.Job.Timeout,
			"attempt", task.Attempt)
	default:
		logger.Error("job failed",
			"job_id", task.Job.ID,
			"entry_id", task.EntryID,
			"error", outcome.Err,
			"attempt", task.Attempt)
	}

	if e.sink != nil {
		// Sink writes should survive shutdown cancellation of the run
		// context's parent.
		ex := sink.Execution{
			EntryID:     task.EntryID,
			JobID:       task.Job.ID,
			JobName:     task.Job.Name,
			Attempt:     task.Attempt,
			ScheduledAt: task.ScheduledAt,
			StartedAt:   started,
			FinishedAt:  finished,
			Outcome:     outcome,
		}
		if err := e.sink.Record(context.WithoutCancel(ctx), ex); err != nil {
			logger.Error("failed to record execution",
				"job_id", task.Job.ID,
				"entry_id", task.EntryID,
				"error", err)
		}
	}

	if task.Done != nil {
		task.Done(Result{
			Task:       task,
			Outcome:    outcome,
			StartedAt:  started,
			FinishedAt: finished,
		})
	}
}

func outcomeFromErr(err error) jobs.Outcome {
	if err == nil {
		return jobs.Success()
	}
	return jobs.Failure(err.Error())
}
