package sink

import (
	"context"
	"sync"
)

const defaultMemoryCapacity = 1024

// MemorySink keeps the most recent executions in a fixed-size ring. Old
// entries are evicted rather than letting history grow without bound.
type MemorySink struct {
	mu    sync.Mutex
	ring  []Execution
	next  int
	count int
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemorySink{
		ring: make([]Execution, capacity),
	}
}

func (s *MemorySink) Record(ctx context.Context, ex Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = ex
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	return nil
}

// ListRecent returns up to limit executions, newest first. limit <= 0 means
// everything retained.
func (s *MemorySink) ListRecent(ctx context.Context, limit int) ([]Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Execution, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out, nil
}

// Len reports how many executions are currently retained.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
