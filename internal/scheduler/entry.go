package scheduler

import (
	"time"

	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/trigger"
)

type EntryID string

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// entry is the dispatch loop's private record for one registration. Only the
// loop goroutine touches it; everything external sees Snapshot copies.
type entry struct {
	id  EntryID
	seq uint64

	job  jobs.Job
	trig trigger.Trigger

	// pendingNodes counts this entry's nodes currently in the heap; inFlight
	// counts executions handed to the executor and not yet completed.
	pendingNodes int
	inFlight     int

	// terminal is set once the entry reaches Completed, Failed, or
	// Cancelled. Terminal entries stay in the table for status queries but
	// never fire again.
	terminal State

	// cancelRequested is set by Cancel while a run is in flight; the run
	// finishes but nothing is rescheduled.
	cancelRequested bool

	// deferNext marks a misfire handled under MisfireDefer: the next
	// occurrence is computed from completion time instead of at dispatch.
	deferNext bool

	// attempts counts consecutive failed dispatches of the current
	// occurrence; reset on success or when the occurrence is abandoned.
	attempts int

	runs     int
	misfired bool

	nextFire     time.Time
	createdAt    time.Time
	lastStarted  time.Time
	lastFinished time.Time
	lastOutcome  *jobs.Outcome
}

func (e *entry) state() State {
	if e.terminal != "" {
		return e.terminal
	}
	if e.inFlight > 0 {
		return StateRunning
	}
	return StatePending
}

func (e *entry) isTerminal() bool {
	return e.terminal != ""
}

// Snapshot is a read-only copy of an entry's externally visible state.
type Snapshot struct {
	EntryID EntryID `json:"entry_id"`
	JobID   jobs.ID `json:"job_id"`
	JobName string  `json:"job_name,omitempty"`
	State   State   `json:"state"`

	// NextFire is unset for terminal entries and for entries whose next
	// occurrence is still being decided (a deferred misfire in flight).
	NextFire *time.Time `json:"next_fire,omitempty"`

	Runs     int  `json:"runs"`
	Attempts int  `json:"attempts"`
	Misfired bool `json:"misfired"`

	CreatedAt    time.Time     `json:"created_at"`
	LastStarted  *time.Time    `json:"last_started,omitempty"`
	LastFinished *time.Time    `json:"last_finished,omitempty"`
	LastOutcome  *jobs.Outcome `json:"last_outcome,omitempty"`
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		EntryID:   e.id,
		JobID:     e.job.ID,
		JobName:   e.job.Name,
		State:     e.state(),
		Runs:      e.runs,
		Attempts:  e.attempts,
		Misfired:  e.misfired,
		CreatedAt: e.createdAt,
	}
	if !e.isTerminal() && e.pendingNodes > 0 && !e.nextFire.IsZero() {
		t := e.nextFire
		s.NextFire = &t
	}
	if !e.lastStarted.IsZero() {
		t := e.lastStarted
		s.LastStarted = &t
	}
	if !e.lastFinished.IsZero() {
		t := e.lastFinished
		s.LastFinished = &t
	}
	if e.lastOutcome != nil {
		o := *e.lastOutcome
		s.LastOutcome = &o
	}
	return s
}
