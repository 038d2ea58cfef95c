package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const MaxSlugLength = 50

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

	weekdays = map[string]time.Weekday{
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
		"sunday":    time.Sunday,
	}
)

// ValidationError describes why a piece of schedule or category input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateSlug accepts lower-case ASCII letters, digits and hyphens only. It must pass before a slug
// is used to build an outbound request.
func ValidateSlug(slug string) error {
	if slug == "" {
		return invalid("slug", "slug is required")
	}
	if len(slug) > MaxSlugLength {
		return invalid("slug", "slug must be at most %d characters", MaxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return invalid("slug", "slug may only contain lowercase letters, digits and hyphens")
	}
	return nil
}

// ValidateClock accepts a strict HH:MM 24-hour time.
func ValidateClock(clock string) error {
	if !clockPattern.MatchString(clock) {
		return invalid("time", "time must be in HH:MM format (e.g., 09:00)")
	}
	return nil
}

// ParseWeekday resolves a weekday name case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, invalid("day", "day must be one of: monday, tuesday, wednesday, thursday, friday, saturday, sunday")
	}
	return day, nil
}

// Parse validates raw schedule input and builds a Schedule. An empty day and a zero date mean the
// value was not provided.
func Parse(frequency, clock, day string, date int) (*Schedule, error) {
	if err := ValidateClock(clock); err != nil {
		return nil, err
	}

	s := &Schedule{
		Frequency: Frequency(strings.ToLower(strings.TrimSpace(frequency))),
		Time:      clock,
	}

	if !s.Frequency.Valid() {
		return nil, invalid("frequency", "frequency must be one of: daily, weekly, biweekly, monthly")
	}

	if (s.Frequency == Weekly || s.Frequency == Biweekly) && day == "" {
		return nil, invalid("day", "%s requires a day (e.g., monday)", s.Frequency)
	}

	if s.Frequency == Monthly {
		if date == 0 {
			return nil, invalid("date", "monthly requires a date (1-31)")
		}
		if date < 1 || date > 31 {
			return nil, invalid("date", "monthly date must be between 1-31")
		}
		s.Date = &date
	}

	if day != "" {
		weekday, err := ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		if s.Frequency == Weekly || s.Frequency == Biweekly {
			s.Day = &weekday
		}
	}

	return s, nil
}

func (f Frequency) Valid() bool {
	for _, v := range frequencies {
		if f == v {
			return true
		}
	}
	return false
}
