package trigger

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestOneShot(t *testing.T) {
	trig := NewOneShot(t0)

	t.Run("fires once before the instant", func(t *testing.T) {
		next, ok := trig.Next(t0.Add(-time.Hour))
		if !ok {
			t.Fatal("expected an occurrence")
		}
		if !next.Equal(t0) {
			t.Errorf("expected %v, got %v", t0, next)
		}
	})

	t.Run("exhausted at the instant", func(t *testing.T) {
		if _, ok := trig.Next(t0); ok {
			t.Error("expected no occurrence when after == fireAt")
		}
	})

	t.Run("exhausted after the instant", func(t *testing.T) {
		if _, ok := trig.Next(t0.Add(time.Second)); ok {
			t.Error("expected no occurrence after fireAt")
		}
	})
}

func TestFixedInterval(t *testing.T) {
	t.Run("rejects non-positive period", func(t *testing.T) {
		if _, err := NewFixedInterval(0, t0); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
		if _, err := NewFixedInterval(-time.Second, t0); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("first occurrence at startAt", func(t *testing.T) {
		trig, err := NewFixedInterval(time.Minute, t0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		next, ok := trig.Next(t0.Add(-time.Second))
		if !ok || !next.Equal(t0) {
			t.Errorf("expected %v, got %v (ok=%v)", t0, next, ok)
		}
	})

	t.Run("boundary is strictly after", func(t *testing.T) {
		trig, _ := NewFixedInterval(time.Minute, t0)

		next, ok := trig.Next(t0)
		if !ok {
			t.Fatal("expected an occurrence")
		}
		if !next.Equal(t0.Add(time.Minute)) {
			t.Errorf("expected %v, got %v", t0.Add(time.Minute), next)
		}
	})

	t.Run("spacing is exactly one period", func(t *testing.T) {
		periods := []time.Duration{time.Second, 90 * time.Second, time.Hour}
		for _, period := range periods {
			trig, _ := NewFixedInterval(period, t0)

			first, ok := trig.Next(t0.Add(17 * time.Millisecond))
			if !ok {
				t.Fatalf("period %s: expected occurrence", period)
			}
			second, ok := trig.Next(first)
			if !ok {
				t.Fatalf("period %s: expected second occurrence", period)
			}

			if got := second.Sub(first); got != period {
				t.Errorf("period %s: spacing %s", period, got)
			}
		}
	})

	t.Run("far past snaps to next boundary without backlog", func(t *testing.T) {
		trig, _ := NewFixedInterval(time.Minute, t0)

		after := t0.Add(100*time.Minute + 30*time.Second)
		next, ok := trig.Next(after)
		if !ok {
			t.Fatal("expected an occurrence")
		}
		want := t0.Add(101 * time.Minute)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})
}

func TestCron(t *testing.T) {
	t.Run("malformed expression rejected at construction", func(t *testing.T) {
		if _, err := NewCron("not a cron", nil); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("five-field expression", func(t *testing.T) {
		trig, err := NewCron("*/15 * * * *", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		next, ok := trig.Next(t0.Add(time.Second))
		if !ok {
			t.Fatal("expected an occurrence")
		}
		want := t0.Add(15 * time.Minute)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("six-field expression with seconds", func(t *testing.T) {
		trig, err := NewCron("30 * * * * *", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		next, ok := trig.Next(t0)
		if !ok {
			t.Fatal("expected an occurrence")
		}
		want := t0.Add(30 * time.Second)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("descriptor", func(t *testing.T) {
		trig, err := NewCron("@hourly", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		next, ok := trig.Next(t0.Add(time.Second))
		if !ok {
			t.Fatal("expected an occurrence")
		}
		if !next.Equal(t0.Add(time.Hour)) {
			t.Errorf("expected %v, got %v", t0.Add(time.Hour), next)
		}
	})

	t.Run("timezone shifts calendar evaluation", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}

		// Daily at 09:00 New York time. t0 is 12:00 UTC = 07:00 or 08:00
		// in New York depending on DST; either way the next firing is the
		// same calendar day.
		trig, err := NewCron("0 9 * * *", loc)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		next, ok := trig.Next(t0)
		if !ok {
			t.Fatal("expected an occurrence")
		}

		inLoc := next.In(loc)
		if inLoc.Hour() != 9 || inLoc.Minute() != 0 {
			t.Errorf("expected 09:00 local, got %v", inLoc)
		}
		if !next.After(t0) {
			t.Errorf("expected strictly-after occurrence, got %v", next)
		}
	})

	t.Run("always strictly after", func(t *testing.T) {
		trig, _ := NewCron("* * * * *", nil)

		after := t0
		for i := 0; i < 5; i++ {
			next, ok := trig.Next(after)
			if !ok {
				t.Fatal("standard cron should always recur")
			}
			if !next.After(after) {
				t.Fatalf("occurrence %v not strictly after %v", next, after)
			}
			after = next
		}
	})
}

func TestSpecBuild(t *testing.T) {
	now := t0

	t.Run("one shot", func(t *testing.T) {
		at := t0.Add(time.Hour)
		trig, err := Spec{FireAt: &at}.Build(now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := trig.(OneShot); !ok {
			t.Errorf("expected OneShot, got %T", trig)
		}
	})

	t.Run("interval defaults start to now", func(t *testing.T) {
		trig, err := Spec{Every: "30s"}.Build(now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		next, ok := trig.Next(now)
		if !ok || !next.Equal(now.Add(30*time.Second)) {
			t.Errorf("expected %v, got %v (ok=%v)", now.Add(30*time.Second), next, ok)
		}
	})

	t.Run("cron with timezone", func(t *testing.T) {
		trig, err := Spec{Cron: "0 0 * * *", Timezone: "UTC"}.Build(now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := trig.(Cron); !ok {
			t.Errorf("expected Cron, got %T", trig)
		}
	})

	t.Run("rejects empty spec", func(t *testing.T) {
		if _, err := (Spec{}).Build(now); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("rejects multiple variants", func(t *testing.T) {
		at := t0.Add(time.Hour)
		spec := Spec{FireAt: &at, Cron: "* * * * *"}
		if _, err := spec.Build(now); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("rejects bad duration", func(t *testing.T) {
		if _, err := (Spec{Every: "soon"}).Build(now); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("rejects unknown timezone", func(t *testing.T) {
		spec := Spec{Cron: "* * * * *", Timezone: "Mars/Olympus"}
		if _, err := spec.Build(now); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("expected ErrInvalidSpec, got %v", err)
		}
	})
}
