package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval, optionally aligned to a
// wall-clock boundary so that restarts do not drift the run times.
type IntervalSchedule struct {
	Interval time.Duration
	Aligned  bool
}

// Every returns a fixed-interval schedule.
func Every(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval}
}

// EveryAligned returns a schedule that fires on multiples of interval,
// e.g. at every full hour for time.Hour.
func EveryAligned(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval, Aligned: true}
}

// Next returns the next run after t. A non-positive interval never fires and
// yields the zero time.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	if s.Interval <= 0 {
		return time.Time{}
	}
	if !s.Aligned {
		return t.Add(s.Interval)
	}
	next := t.Truncate(s.Interval)
	if !next.After(t) {
		next = next.Add(s.Interval)
	}
	return next
}

func (s IntervalSchedule) String() string {
	if s.Aligned {
		return fmt.Sprintf("@every %s aligned", s.Interval)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
