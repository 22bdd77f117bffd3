package trigger

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSpec = errors.New("invalid trigger spec")

// Trigger computes fire times. Next returns the first occurrence strictly
// after the given instant, or ok=false when the trigger has no further
// occurrences. Implementations must never return a time at or before after.
type Trigger interface {
	Next(after time.Time) (time.Time, bool)
}

// OneShot fires exactly once, at a fixed instant.
type OneShot struct {
	fireAt time.Time
}

func NewOneShot(fireAt time.Time) OneShot {
	return OneShot{fireAt: fireAt}
}

func (o OneShot) Next(after time.Time) (time.Time, bool) {
	if after.Before(o.fireAt) {
		return o.fireAt, true
	}
	return time.Time{}, false
}

func (o OneShot) String() string {
	return fmt.Sprintf("once at %s", o.fireAt.Format(time.RFC3339))
}

// FixedInterval fires at startAt + n*period for n >= 0. Occurrences that
// passed while nobody was asking are not backlogged: Next always lands on the
// first boundary after the given instant.
type FixedInterval struct {
	period  time.Duration
	startAt time.Time
}

func NewFixedInterval(period time.Duration, startAt time.Time) (FixedInterval, error) {
	if period <= 0 {
		return FixedInterval{}, fmt.Errorf("%w: interval period must be positive, got %s", ErrInvalidSpec, period)
	}
	return FixedInterval{period: period, startAt: startAt}, nil
}

func (f FixedInterval) Next(after time.Time) (time.Time, bool) {
	if after.Before(f.startAt) {
		return f.startAt, true
	}

	elapsed := after.Sub(f.startAt)
	n := elapsed/f.period + 1
	next := f.startAt.Add(n * f.period)

	// Guard the strictly-after contract when after sits exactly on a
	// boundary and integer division rounded the wrong way.
	for !next.After(after) {
		next = next.Add(f.period)
	}
	return next, true
}

func (f FixedInterval) Period() time.Duration {
	return f.period
}

func (f FixedInterval) String() string {
	return fmt.Sprintf("every %s from %s", f.period, f.startAt.Format(time.RFC3339))
}
