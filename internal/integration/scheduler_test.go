package integration

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albachteng/schedcore/internal/clock"
	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/scheduler"
	"github.com/albachteng/schedcore/internal/sink"
	"github.com/albachteng/schedcore/internal/trigger"
)

// End-to-end on the real clock: short intervals, sqlite history, and the same
// wiring main uses. Kept coarse on timing so it stays stable under load.
func TestScheduler_EndToEnd(t *testing.T) {
	dbPath := t.TempDir() + "/e2e_test.db"
	history, err := sink.NewSQLiteSink(dbPath)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer history.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sched := scheduler.New(scheduler.Config{Workers: 2}, clock.System(), history, logger)
	sched.Start(context.Background())
	defer sched.Shutdown(5 * time.Second)

	var runs atomic.Int64
	job := jobs.Job{
		ID: "e2e-ticker",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	trig, err := trigger.NewFixedInterval(50*time.Millisecond, time.Now())
	if err != nil {
		t.Fatalf("failed to build trigger: %v", err)
	}

	entryID, err := sched.Register(job, trig)
	if err != nil {
		t.Fatalf("failed to register job: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := runs.Load(); got < 3 {
		t.Fatalf("expected at least 3 runs within deadline, got %d", got)
	}

	if err := sched.Cancel(entryID); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	// No further runs once the cancel settles.
	time.Sleep(100 * time.Millisecond)
	after := runs.Load()
	time.Sleep(200 * time.Millisecond)
	if got := runs.Load(); got != after {
		t.Errorf("expected no runs after cancel, count went from %d to %d", after, got)
	}

	snap, err := sched.Lookup(entryID)
	if err != nil {
		t.Fatalf("failed to look up entry: %v", err)
	}
	if snap.State != scheduler.StateCancelled {
		t.Errorf("expected state %q, got %q", scheduler.StateCancelled, snap.State)
	}
	if snap.Runs < 3 {
		t.Errorf("expected at least 3 recorded runs, got %d", snap.Runs)
	}

	// Executions land in the sink asynchronously after the run completes.
	var execs []sink.Execution
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		execs, err = history.ListByEntry(context.Background(), string(entryID))
		if err != nil {
			t.Fatalf("failed to list executions: %v", err)
		}
		if int64(len(execs)) >= after {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(execs) == 0 {
		t.Fatal("expected recorded executions in the sink")
	}
	for _, ex := range execs {
		if ex.JobID != "e2e-ticker" {
			t.Errorf("expected job id %q, got %q", "e2e-ticker", ex.JobID)
		}
		if !ex.Outcome.OK() {
			t.Errorf("expected successful outcome, got %+v", ex.Outcome)
		}
	}
}

func TestScheduler_OneShotEndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	history := sink.NewMemorySink(16)

	sched := scheduler.New(scheduler.Config{Workers: 1}, clock.System(), history, logger)
	sched.Start(context.Background())
	defer sched.Shutdown(5 * time.Second)

	fired := make(chan struct{})
	job := jobs.Job{
		ID: "e2e-oneshot",
		Run: func(ctx context.Context) error {
			close(fired)
			return nil
		},
	}

	entryID, err := sched.Register(job, trigger.NewOneShot(time.Now().Add(50*time.Millisecond)))
	if err != nil {
		t.Fatalf("failed to register job: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("one-shot did not fire within deadline")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := sched.Lookup(entryID)
		if err != nil {
			t.Fatalf("failed to look up entry: %v", err)
		}
		if snap.State == scheduler.StateCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("one-shot entry never reached completed state")
}
