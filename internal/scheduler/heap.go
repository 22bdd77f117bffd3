package scheduler

import (
	"container/heap"
	"time"
)

type nodeKind int

const (
	// nodeOccurrence is a regular trigger occurrence.
	nodeOccurrence nodeKind = iota
	// nodeRetry redispatches a failed occurrence after backoff.
	nodeRetry
)

// node is one pending firing in the timer heap. fireAt is when the dispatch
// loop should act; scheduledAt is the nominal occurrence time carried through
// to reporting. They differ for retries and overlap-delayed occurrences.
type node struct {
	fireAt      time.Time
	scheduledAt time.Time
	seq         uint64
	entryID     EntryID
	kind        nodeKind
}

// fireHeap orders nodes by fire time, breaking ties by insertion sequence so
// simultaneous firings dispatch FIFO. Deterministic ordering here is what
// makes the scheduler's behavior reproducible under test.
type fireHeap []*node

func (h fireHeap) Len() int { return len(h) }

func (h fireHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h fireHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fireHeap) Push(x any) {
	*h = append(*h, x.(*node))
}

func (h *fireHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func (h fireHeap) peek() (*node, bool) {
	if len(h) == 0 {
		return nil, false
	}
	return h[0], true
}

func (h *fireHeap) push(n *node) {
	heap.Push(h, n)
}

func (h *fireHeap) popEarliest() *node {
	return heap.Pop(h).(*node)
}
