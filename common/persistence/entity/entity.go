package entity

import (
	"errors"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"time"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)

type (
	JobStatus string
	SeenScope string
)

const (
	JobStatusActive JobStatus = "active"
	JobStatusPaused JobStatus = "paused"

	ScopeWatch SeenScope = "watch"
	ScopeJob   SeenScope = "job"

	// StatsDateLayout is the layout of JobStats.Date.
	StatsDateLayout = "2006-01-02"
)

type (
	Watch struct {
		ID        int64     `json:"id"`
		OwnerID   int64     `json:"owner_id"`
		Query     string    `json:"query"`
		MaxPrice  *float64  `json:"max_price,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	Job struct {
		ID             int64             `json:"id"`
		GuildID        int64             `json:"guild_id"`
		Slug           string            `json:"slug"`
		Name           string            `json:"name"`
		ChannelID      int64             `json:"channel_id"`
		Schedule       schedule.Schedule `json:"schedule"`
		MinTemperature int               `json:"min_temperature"`
		MaxPrice       *float64          `json:"max_price,omitempty"`
		Status         JobStatus         `json:"status"`
		LastRun        *time.Time        `json:"last_run,omitempty"`
		CreatedAt      time.Time         `json:"created_at"`
	}

	SeenDeal struct {
		Scope   SeenScope `json:"scope"`
		ScopeID int64     `json:"scope_id"`
		DealID  string    `json:"deal_id"`
	}

	JobStats struct {
		JobID        int64  `json:"job_id"`
		Date         string `json:"date"`
		DealsFound   int    `json:"deals_found"`
		DealsSent    int    `json:"deals_sent"`
		ScrapeErrors int    `json:"scrape_errors"`
	}
)

func (j *Job) Target() schedule.Target {
	return schedule.Target{
		Schedule: j.Schedule,
		Paused:   j.Status != JobStatusActive,
		LastRun:  j.LastRun,
	}
}

type (
	UpsertWatchInput struct {
		ID       int64    `json:"id"`
		OwnerID  int64    `json:"owner_id"`
		Query    string   `json:"query"`
		MaxPrice *float64 `json:"max_price,omitempty"`
	}

	UpsertWatchOutput struct {
		Watch   *Watch `json:"watch"`
		Created bool   `json:"created"`
	}

	DeleteWatchInput struct {
		OwnerID int64  `json:"owner_id"`
		Query   string `json:"query"`
	}

	DeleteWatchOutput struct {
	}

	ListWatchesInput struct {
		OwnerID int64 `json:"owner_id"`
	}

	ListWatchesOutput struct {
		Watches []*Watch `json:"watches"`
	}

	ListDistinctQueriesInput struct {
	}

	ListDistinctQueriesOutput struct {
		Queries []string `json:"queries"`
	}

	ListWatchesByQueryInput struct {
		Query string `json:"query"`
	}

	ListWatchesByQueryOutput struct {
		Watches []*Watch `json:"watches"`
	}
)

type (
	CreateJobInput struct {
		Job *Job `json:"job"`
	}

	CreateJobOutput struct {
	}

	// GetJobInput looks a job up by ID when ID is set, otherwise by guild and slug.
	GetJobInput struct {
		ID      int64  `json:"id,omitzero"`
		GuildID int64  `json:"guild_id,omitzero"`
		Slug    string `json:"slug,omitzero"`
	}

	GetJobOutput struct {
		Job *Job `json:"job"`
	}

	ListJobsInput struct {
		GuildID int64      `json:"guild_id"`
		Status  *JobStatus `json:"status,omitempty"`
	}

	ListJobsOutput struct {
		Jobs []*Job `json:"jobs"`
	}

	ListActiveJobsInput struct {
	}

	ListActiveJobsOutput struct {
		Jobs []*Job `json:"jobs"`
	}

	UpdateJobStatusInput struct {
		GuildID int64     `json:"guild_id"`
		Slug    string    `json:"slug"`
		Status  JobStatus `json:"status"`
	}

	UpdateJobStatusOutput struct {
	}

	UpdateJobLastRunInput struct {
		ID      int64     `json:"id"`
		LastRun time.Time `json:"last_run"`
	}

	UpdateJobLastRunOutput struct {
	}

	DeleteJobInput struct {
		GuildID int64  `json:"guild_id"`
		Slug    string `json:"slug"`
	}

	DeleteJobOutput struct {
	}
)

type (
	IsDealSeenInput struct {
		Deal *SeenDeal `json:"deal"`
	}

	IsDealSeenOutput struct {
		Seen bool `json:"seen"`
	}

	MarkDealsSeenInput struct {
		Deals []*SeenDeal `json:"deals"`
	}

	MarkDealsSeenOutput struct {
	}

	PurgeSeenDealsInput struct {
		Before time.Time `json:"before"`
	}

	PurgeSeenDealsOutput struct {
		Purged int64 `json:"purged"`
	}

	IncrementJobStatsInput struct {
		JobID        int64  `json:"job_id"`
		Date         string `json:"date"`
		DealsFound   int    `json:"deals_found"`
		DealsSent    int    `json:"deals_sent"`
		ScrapeErrors int    `json:"scrape_errors"`
	}

	IncrementJobStatsOutput struct {
	}

	ListJobStatsInput struct {
		JobID int64  `json:"job_id"`
		Since string `json:"since"`
	}

	ListJobStatsOutput struct {
		Stats []*JobStats `json:"stats"`
	}
)
