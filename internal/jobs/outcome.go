package jobs

type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusTimedOut Status = "timed_out"
)

// Outcome is the terminal result of one job execution. Failures carry the
// error text rather than the error value so outcomes stay comparable and
// serializable.
type Outcome struct {
	Status Status `json:"status"`
	Err    string `json:"error,omitempty"`
}

func Success() Outcome {
	return Outcome{Status: StatusSuccess}
}

func Failure(reason string) Outcome {
	return Outcome{Status: StatusFailure, Err: reason}
}

func TimedOut() Outcome {
	return Outcome{Status: StatusTimedOut, Err: "execution exceeded timeout"}
}

func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}
