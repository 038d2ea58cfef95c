package categories

import (
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"time"
)

type (
	Schedule struct {
		Type        string `json:"type"`
		Time        string `json:"time"`
		Day         string `json:"day,omitempty"`
		Date        *int   `json:"date,omitempty"`
		Description string `json:"description"`
	}

	Job struct {
		ID             int64            `json:"id,string"`
		GuildID        int64            `json:"guild_id,string"`
		Slug           string           `json:"slug"`
		Name           string           `json:"name"`
		ChannelID      int64            `json:"channel_id,string"`
		Schedule       Schedule         `json:"schedule"`
		MinTemperature int              `json:"min_temperature"`
		MaxPrice       *float64         `json:"max_price,omitempty"`
		Status         entity.JobStatus `json:"status"`
		LastRun        *time.Time       `json:"last_run,omitempty"`
		CreatedAt      time.Time        `json:"created_at"`
	}

	CreateJobInput struct {
		GuildID        int64    `json:"guild_id" validate:"required,gt=0"`
		ChannelID      int64    `json:"channel_id" validate:"required,gt=0"`
		Slug           string   `json:"slug" validate:"required,slug"`
		Name           string   `json:"name" validate:"max=100"`
		Frequency      string   `json:"frequency" validate:"required"`
		Time           string   `json:"time" validate:"required"`
		Day            string   `json:"day"`
		Date           int      `json:"date"`
		MinTemperature int      `json:"min_temperature"`
		MaxPrice       *float64 `json:"max_price,omitempty" validate:"omitempty,gt=0"`
	}

	CreateJobOutput struct {
		Job *Job `json:"job"`
	}

	GetJobInput struct {
		GuildID int64  `json:"guild_id" validate:"required,gt=0"`
		Slug    string `json:"slug" validate:"required,slug"`
	}

	GetJobOutput struct {
		Job *Job `json:"job"`
	}

	ListJobsInput struct {
		GuildID int64            `json:"guild_id" validate:"required,gt=0"`
		Status  entity.JobStatus `json:"status" validate:"omitempty,oneof=active paused"`
	}

	ListJobsOutput struct {
		Jobs []*Job `json:"jobs"`
	}

	UpdateStatusInput struct {
		GuildID int64            `json:"guild_id" validate:"required,gt=0"`
		Slug    string           `json:"slug" validate:"required,slug"`
		Status  entity.JobStatus `json:"status" validate:"required,oneof=active paused"`
	}

	UpdateStatusOutput struct {
	}

	DeleteJobInput struct {
		GuildID int64  `json:"guild_id" validate:"required,gt=0"`
		Slug    string `json:"slug" validate:"required,slug"`
	}

	DeleteJobOutput struct {
	}

	StatsInput struct {
		GuildID int64  `json:"guild_id" validate:"required,gt=0"`
		Slug    string `json:"slug" validate:"required,slug"`
		Days    int    `json:"days" validate:"min=1,max=365"`
	}

	StatsOutput struct {
		Days   []*entity.JobStats `json:"days"`
		Totals entity.JobStats    `json:"totals"`
	}
)
