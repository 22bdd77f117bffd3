package trigger

import (
	"fmt"
	"time"

	cronparser "github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions with an optional leading
// seconds field, plus descriptors like @hourly.
var parser = cronparser.NewParser(
	cronparser.SecondOptional | cronparser.Minute | cronparser.Hour |
		cronparser.Dom | cronparser.Month | cronparser.Dow | cronparser.Descriptor,
)

// Cron fires on a cron-expression calendar, evaluated in a fixed timezone.
type Cron struct {
	expr     string
	schedule cronparser.Schedule
	loc      *time.Location
}

// NewCron parses expr at construction so malformed expressions fail at
// registration time, never in the dispatch loop. A nil location defaults to
// UTC.
func NewCron(expr string, loc *time.Location) (Cron, error) {
	if loc == nil {
		loc = time.UTC
	}

	schedule, err := parser.Parse(expr)
	if err != nil {
		return Cron{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSpec, expr, err)
	}

	return Cron{expr: expr, schedule: schedule, loc: loc}, nil
}

func (c Cron) Next(after time.Time) (time.Time, bool) {
	next := c.schedule.Next(after.In(c.loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (c Cron) String() string {
	return fmt.Sprintf("cron %q in %s", c.expr, c.loc)
}
