package sink

import (
	"context"
	"time"

	"github.com/albachteng/schedcore/internal/jobs"
)

// Execution is one finished run of a scheduled job as reported to a sink.
type Execution struct {
	EntryID string   `json:"entry_id"`
	JobID   jobs.ID  `json:"job_id"`
	JobName string   `json:"job_name,omitempty"`
	Attempt int      `json:"attempt"`

	// ScheduledAt is the nominal fire time; StartedAt/FinishedAt are when
	// the body actually ran. A misfired occurrence shows the gap here.
	ScheduledAt time.Time `json:"scheduled_at"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Outcome jobs.Outcome `json:"outcome"`
}

// Sink receives every completed execution. Implementations must be safe for
// concurrent use; Record is called from executor workers.
type Sink interface {
	Record(ctx context.Context, ex Execution) error
}

// Reader is implemented by sinks that can serve recent history back out, for
// the status API.
type Reader interface {
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
}
