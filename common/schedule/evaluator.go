package schedule

import (
	"time"
)

const (
	DefaultDriftTolerance  = 2 * time.Minute
	DefaultDebounce        = 30 * time.Minute
	DefaultBiweeklyMinDays = 13
)

// Evaluator decides whether a recurring job is due at a given tick. A tick source firing once per
// minute never lands exactly on the scheduled minute, so the scheduled instant is matched with a
// tolerance and a fired job is debounced for the rest of that window.
type Evaluator struct {
	DriftTolerance  time.Duration
	Debounce        time.Duration
	BiweeklyMinDays int
	Location        *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{
		DriftTolerance:  DefaultDriftTolerance,
		Debounce:        DefaultDebounce,
		BiweeklyMinDays: DefaultBiweeklyMinDays,
		Location:        loc,
	}
}

// Occurrence returns today's scheduled instant for s, in the evaluator's location.
func (e *Evaluator) Occurrence(s Schedule, now time.Time) (time.Time, bool) {
	hour, minute, err := s.Clock()
	if err != nil {
		return time.Time{}, false
	}
	now = now.In(e.location())
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, e.location()), true
}

func (e *Evaluator) IsDue(t Target, now time.Time) bool {
	if t.Paused {
		return false
	}

	now = now.In(e.location())

	scheduled, ok := e.Occurrence(t.Schedule, now)
	if !ok {
		return false
	}

	drift := now.Sub(scheduled)
	if drift < 0 {
		drift = -drift
	}
	if drift >= e.DriftTolerance {
		return false
	}

	if t.LastRun != nil && now.Sub(*t.LastRun) < e.Debounce {
		return false
	}

	switch t.Schedule.Frequency {
	case Daily:
		return true
	case Weekly, Biweekly:
		if t.Schedule.Day == nil || now.Weekday() != *t.Schedule.Day {
			return false
		}
		if t.Schedule.Frequency == Biweekly && t.LastRun != nil {
			if int(now.Sub(*t.LastRun)/(24*time.Hour)) < e.BiweeklyMinDays {
				return false
			}
		}
		return true
	case Monthly:
		return t.Schedule.Date != nil && now.Day() == *t.Schedule.Date
	default:
		return false
	}
}

func (e *Evaluator) location() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}
