package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func weekday(d time.Weekday) *time.Weekday { return &d }

func date(d int) *int { return &d }

func at(day, hour, minute, second int) time.Time {
	// January 2024 starts on a Monday.
	return time.Date(2024, time.January, day, hour, minute, second, 0, time.UTC)
}

func TestEvaluatorIsDue(t *testing.T) {
	weeklyMonday := Schedule{Frequency: Weekly, Time: "09:00", Day: weekday(time.Monday)}
	biweeklyMonday := Schedule{Frequency: Biweekly, Time: "09:00", Day: weekday(time.Monday)}

	ago := func(now time.Time, d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name   string
		target Target
		now    time.Time
		want   bool
	}{
		{
			name:   "weekly on the right day inside the window",
			target: Target{Schedule: weeklyMonday},
			now:    at(1, 9, 1, 0),
			want:   true,
		},
		{
			name:   "tick slightly before the scheduled minute",
			target: Target{Schedule: weeklyMonday},
			now:    at(1, 8, 58, 30),
			want:   true,
		},
		{
			name:   "drift just under the tolerance",
			target: Target{Schedule: weeklyMonday},
			now:    at(1, 9, 1, 59),
			want:   true,
		},
		{
			name:   "drift equal to the tolerance",
			target: Target{Schedule: weeklyMonday},
			now:    at(1, 9, 2, 0),
			want:   false,
		},
		{
			name:   "weekly on the wrong day",
			target: Target{Schedule: weeklyMonday},
			now:    at(2, 9, 0, 0),
			want:   false,
		},
		{
			name:   "weekly debounced after a run in the same window",
			target: Target{Schedule: weeklyMonday, LastRun: ago(at(1, 9, 1, 0), 30*time.Second)},
			now:    at(1, 9, 1, 0),
			want:   false,
		},
		{
			name:   "weekly with a run last week",
			target: Target{Schedule: weeklyMonday, LastRun: ago(at(8, 9, 0, 0), 7*24*time.Hour)},
			now:    at(8, 9, 0, 0),
			want:   true,
		},
		{
			name:   "weekly without a day",
			target: Target{Schedule: Schedule{Frequency: Weekly, Time: "09:00"}},
			now:    at(1, 9, 0, 0),
			want:   false,
		},
		{
			name:   "biweekly without a prior run",
			target: Target{Schedule: biweeklyMonday},
			now:    at(15, 9, 0, 0),
			want:   true,
		},
		{
			name:   "biweekly ten days after the last run",
			target: Target{Schedule: biweeklyMonday, LastRun: ago(at(15, 9, 0, 0), 10*24*time.Hour)},
			now:    at(15, 9, 0, 0),
			want:   false,
		},
		{
			name:   "biweekly thirteen days after the last run",
			target: Target{Schedule: biweeklyMonday, LastRun: ago(at(15, 9, 0, 0), 13*24*time.Hour)},
			now:    at(15, 9, 0, 0),
			want:   true,
		},
		{
			name:   "biweekly fourteen days after the last run",
			target: Target{Schedule: biweeklyMonday, LastRun: ago(at(15, 9, 0, 0), 14*24*time.Hour)},
			now:    at(15, 9, 0, 0),
			want:   true,
		},
		{
			name:   "daily",
			target: Target{Schedule: Schedule{Frequency: Daily, Time: "18:30"}},
			now:    at(3, 18, 30, 5),
			want:   true,
		},
		{
			name:   "daily outside the window",
			target: Target{Schedule: Schedule{Frequency: Daily, Time: "18:30"}},
			now:    at(3, 19, 30, 0),
			want:   false,
		},
		{
			name:   "monthly on the configured date",
			target: Target{Schedule: Schedule{Frequency: Monthly, Time: "07:00", Date: date(15)}},
			now:    at(15, 7, 0, 0),
			want:   true,
		},
		{
			name:   "monthly on another date",
			target: Target{Schedule: Schedule{Frequency: Monthly, Time: "07:00", Date: date(15)}},
			now:    at(16, 7, 0, 0),
			want:   false,
		},
		{
			name:   "paused job",
			target: Target{Schedule: Schedule{Frequency: Daily, Time: "09:00"}, Paused: true},
			now:    at(1, 9, 0, 0),
			want:   false,
		},
		{
			name:   "unknown frequency",
			target: Target{Schedule: Schedule{Frequency: "hourly", Time: "09:00"}},
			now:    at(1, 9, 0, 0),
			want:   false,
		},
		{
			name:   "malformed time",
			target: Target{Schedule: Schedule{Frequency: Daily, Time: "9am"}},
			now:    at(1, 9, 0, 0),
			want:   false,
		},
	}

	e := NewEvaluator(time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.IsDue(tt.target, tt.now))
		})
	}
}

func TestEvaluatorUsesLocation(t *testing.T) {
	warsaw := time.FixedZone("CET", 60*60)
	e := NewEvaluator(warsaw)

	target := Target{Schedule: Schedule{Frequency: Daily, Time: "09:00"}}

	// 08:00 UTC is 09:00 in the evaluator's zone.
	assert.True(t, e.IsDue(target, at(1, 8, 0, 0)))
	assert.False(t, e.IsDue(target, at(1, 9, 0, 0)))
}

func TestEvaluatorOccurrence(t *testing.T) {
	e := NewEvaluator(time.UTC)

	got, ok := e.Occurrence(Schedule{Frequency: Daily, Time: "09:00"}, at(1, 9, 1, 30))
	assert.True(t, ok)
	assert.Equal(t, at(1, 9, 0, 0), got)

	_, ok = e.Occurrence(Schedule{Frequency: Daily, Time: "25:00"}, at(1, 9, 0, 0))
	assert.False(t, ok)
}
