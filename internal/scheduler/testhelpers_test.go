package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/albachteng/schedcore/internal/clock"
	"github.com/albachteng/schedcore/internal/sink"
)

// captureSink records executions in completion order for assertions.
type captureSink struct {
	mu   sync.Mutex
	recs []sink.Execution
}

func (s *captureSink) Record(ctx context.Context, ex sink.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, ex)
	return nil
}

func (s *captureSink) list() []sink.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sink.Execution, len(s.recs))
	copy(out, s.recs)
	return out
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func newTestScheduler(t *testing.T, clk clock.Clock, capture *captureSink, cfg Config) *Scheduler {
	t.Helper()

	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	s := New(cfg, clk, capture, nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		s.Shutdown(2 * time.Second)
	})
	return s
}

// waitFor polls cond with a generous real-time deadline. Virtual-time tests
// advance the fake clock and then wait here for the dispatch loop and workers
// to observe it.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// settle gives background goroutines a moment to process whatever the last
// clock advance released, for asserting that something did NOT happen.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

// waitForRuns blocks until the dispatch loop has processed n completions for
// the entry. Lookup is serialized through the loop, so once Runs reaches n
// any rescheduling from those completions is already in the heap.
func waitForRuns(t *testing.T, s *Scheduler, id EntryID, n int) {
	t.Helper()
	waitFor(t, "completions processed", func() bool {
		snap, err := s.Lookup(id)
		return err == nil && snap.Runs >= n
	})
}
