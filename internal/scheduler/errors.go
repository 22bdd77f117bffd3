package scheduler

import "errors"

var (
	ErrDuplicateJobID     = errors.New("job id already has an active entry")
	ErrNoFutureOccurrence = errors.New("trigger has no future occurrence")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrSchedulerStopped   = errors.New("scheduler is stopped")
	ErrNotStarted         = errors.New("scheduler is not started")
)
