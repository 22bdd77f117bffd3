package jobs

import (
	"context"
	"fmt"
	"time"
)

type ID string

// RunFunc is the body of a job. It must observe ctx for cooperative
// cancellation; a run that outlives its deadline is reported as timed out
// whether or not the body eventually returns.
type RunFunc func(ctx context.Context) error

// MisfirePolicy controls what happens when a scheduled fire time passes by
// more than the scheduler's grace threshold before the entry is dispatched.
type MisfirePolicy int

const (
	// MisfireRunNow executes the late occurrence immediately. Subsequent
	// occurrences keep their original cadence.
	MisfireRunNow MisfirePolicy = iota

	// MisfireSkip drops the late occurrence and waits for the next one.
	MisfireSkip

	// MisfireDefer executes the late occurrence immediately but shifts the
	// schedule, computing the next occurrence from completion time.
	MisfireDefer
)

func (p MisfirePolicy) String() string {
	switch p {
	case MisfireRunNow:
		return "run_now"
	case MisfireSkip:
		return "skip"
	case MisfireDefer:
		return "defer"
	default:
		return fmt.Sprintf("misfire(%d)", int(p))
	}
}

// ParseMisfirePolicy maps a config/API string to a policy. The empty string
// selects MisfireRunNow.
func ParseMisfirePolicy(s string) (MisfirePolicy, error) {
	switch s {
	case "", "run_now":
		return MisfireRunNow, nil
	case "skip":
		return MisfireSkip, nil
	case "defer":
		return MisfireDefer, nil
	default:
		return 0, fmt.Errorf("unknown misfire policy %q", s)
	}
}

// Job is a unit of schedulable work plus its execution constraints. The ID is
// the caller's stable key; it never changes after registration.
type Job struct {
	ID   ID
	Name string
	Run  RunFunc

	// Timeout bounds a single execution. Zero means no per-run deadline.
	Timeout time.Duration

	Misfire MisfirePolicy

	// AllowOverlap permits a new occurrence to start while a previous run of
	// the same job is still in flight. Off by default.
	AllowOverlap bool

	// MaxRetries is the number of redispatches after a failed or timed-out
	// run before the occurrence is abandoned.
	MaxRetries int
}

func (j Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidJob)
	}
	if j.Run == nil {
		return fmt.Errorf("%w: nil run func for job %q", ErrInvalidJob, j.ID)
	}
	if j.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout for job %q", ErrInvalidJob, j.ID)
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("%w: negative max retries for job %q", ErrInvalidJob, j.ID)
	}
	return nil
}
