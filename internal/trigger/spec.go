package trigger

import (
	"fmt"
	"time"
)

// Spec is the wire/config form of a trigger. Exactly one of FireAt, Every, or
// Cron must be set.
type Spec struct {
	// FireAt schedules a single firing at a fixed instant.
	FireAt *time.Time `json:"fire_at,omitempty" yaml:"fire_at,omitempty"`

	// Every is a Go duration string ("30s", "5m") for fixed-interval firing.
	Every string `json:"every,omitempty" yaml:"every,omitempty"`

	// StartAt anchors a fixed-interval schedule. Defaults to now.
	StartAt *time.Time `json:"start_at,omitempty" yaml:"start_at,omitempty"`

	// Cron is a five- or six-field cron expression (seconds optional).
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`

	// Timezone is an IANA zone name for cron evaluation, e.g. "Asia/Jakarta".
	// Defaults to UTC. Ignored for the other variants.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Build validates the spec and constructs the trigger. now anchors
// fixed-interval schedules that omit start_at.
func (s Spec) Build(now time.Time) (Trigger, error) {
	set := 0
	if s.FireAt != nil {
		set++
	}
	if s.Every != "" {
		set++
	}
	if s.Cron != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of fire_at, every, cron must be set", ErrInvalidSpec)
	}

	switch {
	case s.FireAt != nil:
		return NewOneShot(*s.FireAt), nil

	case s.Every != "":
		period, err := time.ParseDuration(s.Every)
		if err != nil {
			return nil, fmt.Errorf("%w: every %q: %v", ErrInvalidSpec, s.Every, err)
		}
		startAt := now
		if s.StartAt != nil {
			startAt = *s.StartAt
		}
		return NewFixedInterval(period, startAt)

	default:
		loc := time.UTC
		if s.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(s.Timezone)
			if err != nil {
				return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSpec, s.Timezone, err)
			}
		}
		return NewCron(s.Cron, loc)
	}
}
