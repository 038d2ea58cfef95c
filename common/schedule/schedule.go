// Package schedule holds the recurring schedule model of category jobs, the validation of
// human-entered schedule input and the evaluator deciding whether a job is due.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

type Frequency string

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

var frequencies = []Frequency{Daily, Weekly, Biweekly, Monthly}

type (
	// Schedule is a validated recurring schedule. Day is only set for weekly and biweekly
	// schedules, Date only for monthly ones.
	Schedule struct {
		Frequency Frequency     `json:"type"`
		Time      string        `json:"time"`
		Day       *time.Weekday `json:"day,omitempty"`
		Date      *int          `json:"date,omitempty"`
	}

	// Target is what the evaluator needs to know about a job.
	Target struct {
		Schedule Schedule
		Paused   bool
		LastRun  *time.Time
	}
)

// Clock returns the hour and minute of the schedule time.
func (s *Schedule) Clock() (hour, minute int, err error) {
	if err = ValidateClock(s.Time); err != nil {
		return 0, 0, err
	}
	hour = int(s.Time[0]-'0')*10 + int(s.Time[1]-'0')
	minute = int(s.Time[3]-'0')*10 + int(s.Time[4]-'0')
	return hour, minute, nil
}

// DayName returns the lower-case weekday name, or an empty string when no day is set.
func (s *Schedule) DayName() string {
	if s.Day == nil {
		return ""
	}
	return strings.ToLower(s.Day.String())
}

func (s *Schedule) String() string {
	switch s.Frequency {
	case Daily:
		return fmt.Sprintf("Daily at %s", s.Time)
	case Weekly:
		return fmt.Sprintf("Weekly (%s) at %s", s.dayTitle(), s.Time)
	case Biweekly:
		return fmt.Sprintf("Biweekly (%s) at %s", s.dayTitle(), s.Time)
	case Monthly:
		if s.Date != nil {
			return fmt.Sprintf("Monthly (day %d) at %s", *s.Date, s.Time)
		}
	}
	return "Unknown schedule"
}

func (s *Schedule) dayTitle() string {
	if s.Day == nil {
		return "?"
	}
	return s.Day.String()
}
