// Package models holds the row shapes shared by the SQL drivers and their conversion into entities.
package models

import (
	"database/sql"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"time"
)

type (
	Watch struct {
		ID        int64           `db:"id"`
		OwnerID   int64           `db:"owner_id"`
		Query     string          `db:"query"`
		MaxPrice  sql.NullFloat64 `db:"max_price"`
		CreatedAt Timestamp       `db:"created_at"`
	}

	Job struct {
		ID             int64           `db:"id"`
		GuildID        int64           `db:"guild_id"`
		Slug           string          `db:"slug"`
		Name           string          `db:"name"`
		ChannelID      int64           `db:"channel_id"`
		ScheduleType   string          `db:"schedule_type"`
		ScheduleTime   string          `db:"schedule_time"`
		ScheduleDay    sql.NullString  `db:"schedule_day"`
		ScheduleDate   sql.NullInt64   `db:"schedule_date"`
		MinTemperature int             `db:"min_temperature"`
		MaxPrice       sql.NullFloat64 `db:"max_price"`
		Status         string          `db:"status"`
		LastRun        Timestamp       `db:"last_run"`
		CreatedAt      Timestamp       `db:"created_at"`
	}

	JobStats struct {
		JobID        int64  `db:"job_id"`
		Date         string `db:"stat_date"`
		DealsFound   int    `db:"deals_found"`
		DealsSent    int    `db:"deals_sent"`
		ScrapeErrors int    `db:"scrape_errors"`
	}

	// Timestamp scans whatever a driver hands back for a time column. Values that cannot be
	// interpreted leave it invalid instead of failing the scan.
	Timestamp struct {
		Time  time.Time
		Valid bool
	}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// SQLiteTimeLayout is how timestamps are written to SQLite-family databases.
const SQLiteTimeLayout = "2006-01-02 15:04:05"

func (t *Timestamp) Scan(src any) error {
	t.Time, t.Valid = time.Time{}, false

	switch v := src.(type) {
	case nil:
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
	case string:
		t.parse(v)
	case []byte:
		t.parse(string(v))
	case int64:
		t.Time, t.Valid = time.Unix(v, 0).UTC(), true
	}

	return nil
}

func (t *Timestamp) parse(s string) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return
		}
	}
}

func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (w *Watch) Entity() *entity.Watch {
	return &entity.Watch{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Query:     w.Query,
		MaxPrice:  nullFloat(w.MaxPrice),
		CreatedAt: w.CreatedAt.Time,
	}
}

// Entity converts the row. A stored weekday that no longer parses leaves the schedule without a
// day, which the evaluator treats as never due.
func (j *Job) Entity() *entity.Job {
	job := &entity.Job{
		ID:             j.ID,
		GuildID:        j.GuildID,
		Slug:           j.Slug,
		Name:           j.Name,
		ChannelID:      j.ChannelID,
		MinTemperature: j.MinTemperature,
		MaxPrice:       nullFloat(j.MaxPrice),
		Status:         entity.JobStatus(j.Status),
		LastRun:        j.LastRun.Ptr(),
		CreatedAt:      j.CreatedAt.Time,
		Schedule: schedule.Schedule{
			Frequency: schedule.Frequency(j.ScheduleType),
			Time:      j.ScheduleTime,
		},
	}

	if j.ScheduleDay.Valid && j.ScheduleDay.String != "" {
		if day, err := schedule.ParseWeekday(j.ScheduleDay.String); err == nil {
			job.Schedule.Day = &day
		}
	}

	if j.ScheduleDate.Valid {
		date := int(j.ScheduleDate.Int64)
		job.Schedule.Date = &date
	}

	return job
}

func (s *JobStats) Entity() *entity.JobStats {
	return &entity.JobStats{
		JobID:        s.JobID,
		Date:         s.Date,
		DealsFound:   s.DealsFound,
		DealsSent:    s.DealsSent,
		ScrapeErrors: s.ScrapeErrors,
	}
}

// JobArgs flattens a job into named query arguments. Timestamps are passed through timeArg so each
// dialect can store them in its own representation.
func JobArgs(job *entity.Job, createdAt time.Time, timeArg func(time.Time) any) map[string]any {
	args := map[string]any{
		"id":              job.ID,
		"guild_id":        job.GuildID,
		"slug":            job.Slug,
		"name":            job.Name,
		"channel_id":      job.ChannelID,
		"schedule_type":   string(job.Schedule.Frequency),
		"schedule_time":   job.Schedule.Time,
		"schedule_day":    nil,
		"schedule_date":   nil,
		"min_temperature": job.MinTemperature,
		"max_price":       nil,
		"status":          string(job.Status),
		"created_at":      timeArg(createdAt),
	}

	if job.Status == "" {
		args["status"] = string(entity.JobStatusActive)
	}
	if day := job.Schedule.DayName(); day != "" {
		args["schedule_day"] = day
	}
	if job.Schedule.Date != nil {
		args["schedule_date"] = *job.Schedule.Date
	}
	if job.MaxPrice != nil {
		args["max_price"] = *job.MaxPrice
	}

	return args
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
