package categories

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/persistence"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"github.com/go-playground/validator/v10"
	"github.com/sony/sonyflake/v2"
	"time"
)

type (
	Servicer interface {
		CreateJob(ctx context.Context, in *CreateJobInput) (*CreateJobOutput, error)
		GetJob(ctx context.Context, in *GetJobInput) (*GetJobOutput, error)
		ListJobs(ctx context.Context, in *ListJobsInput) (*ListJobsOutput, error)
		UpdateStatus(ctx context.Context, in *UpdateStatusInput) (*UpdateStatusOutput, error)
		DeleteJob(ctx context.Context, in *DeleteJobInput) (*DeleteJobOutput, error)
		Stats(ctx context.Context, in *StatsInput) (*StatsOutput, error)
	}

	Service struct {
		db        persistence.Persistence
		source    deals.Source
		sonyflake *sonyflake.Sonyflake
		validator *validator.Validate
		location  *time.Location
		now       func() time.Time
	}
)

var _ Servicer = (*Service)(nil)

func NewService(
	db persistence.Persistence,
	source deals.Source,
	sonyflake *sonyflake.Sonyflake,
	validator *validator.Validate,
	location *time.Location,
) (Servicer, error) {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		db:        db,
		source:    source,
		sonyflake: sonyflake,
		validator: validator,
		location:  location,
		now:       time.Now,
	}, nil
}

// CreateJob validates the schedule, checks that the category exists at the deal source and
// stores the job as active.
func (s *Service) CreateJob(ctx context.Context, in *CreateJobInput) (*CreateJobOutput, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	sched, err := schedule.Parse(in.Frequency, in.Time, in.Day, in.Date)
	if err != nil {
		return nil, err
	}

	probe, err := s.source.ByCategory(ctx, &deals.ByCategoryInput{Slug: in.Slug, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to probe category: %w", err)
	}
	if len(probe.Deals) == 0 {
		return nil, &schedule.ValidationError{Field: "slug", Reason: fmt.Sprintf("category %q not found", in.Slug)}
	}

	id, err := s.sonyflake.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	name := in.Name
	if name == "" {
		name = in.Slug
	}

	if _, err = s.db.CreateJob(ctx, &entity.CreateJobInput{
		Job: &entity.Job{
			ID:             id,
			GuildID:        in.GuildID,
			Slug:           in.Slug,
			Name:           name,
			ChannelID:      in.ChannelID,
			Schedule:       *sched,
			MinTemperature: in.MinTemperature,
			MaxPrice:       in.MaxPrice,
			Status:         entity.JobStatusActive,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	created, err := s.db.GetJob(ctx, &entity.GetJobInput{ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to load created job: %w", err)
	}

	return &CreateJobOutput{Job: toJob(created.Job)}, nil
}

func (s *Service) GetJob(ctx context.Context, in *GetJobInput) (*GetJobOutput, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	res, err := s.db.GetJob(ctx, &entity.GetJobInput{GuildID: in.GuildID, Slug: in.Slug})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &GetJobOutput{Job: toJob(res.Job)}, nil
}

func (s *Service) ListJobs(ctx context.Context, in *ListJobsInput) (*ListJobsOutput, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	filter := &entity.ListJobsInput{GuildID: in.GuildID}
	if in.Status != "" {
		filter.Status = &in.Status
	}

	res, err := s.db.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(res.Jobs))
	for _, j := range res.Jobs {
		jobs = append(jobs, toJob(j))
	}

	return &ListJobsOutput{Jobs: jobs}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, in *UpdateStatusInput) (*UpdateStatusOutput, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.db.UpdateJobStatus(ctx, &entity.UpdateJobStatusInput{
		GuildID: in.GuildID,
		Slug:    in.Slug,
		Status:  in.Status,
	}); err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	return &UpdateStatusOutput{}, nil
}

func (s *Service) DeleteJob(ctx context.Context, in *DeleteJobInput) (*DeleteJobOutput, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.db.DeleteJob(ctx, &entity.DeleteJobInput{GuildID: in.GuildID, Slug: in.Slug}); err != nil {
		return nil, fmt.Errorf("failed to delete job: %w", err)
	}

	return &DeleteJobOutput{}, nil
}

// Stats returns the per-day statistics of the last in.Days days, today included, newest first.
func (s *Service) Stats(ctx context.Context, in *StatsInput) (*StatsOutput, error) {
	if in.Days == 0 {
		in.Days = 7
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	job, err := s.db.GetJob(ctx, &entity.GetJobInput{GuildID: in.GuildID, Slug: in.Slug})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	since := s.now().In(s.location).AddDate(0, 0, -(in.Days - 1)).Format(entity.StatsDateLayout)

	res, err := s.db.ListJobStats(ctx, &entity.ListJobStatsInput{JobID: job.Job.ID, Since: since})
	if err != nil {
		return nil, fmt.Errorf("failed to list job stats: %w", err)
	}

	out := &StatsOutput{
		Days:   res.Stats,
		Totals: entity.JobStats{JobID: job.Job.ID, Date: since},
	}
	for _, day := range res.Stats {
		out.Totals.DealsFound += day.DealsFound
		out.Totals.DealsSent += day.DealsSent
		out.Totals.ScrapeErrors += day.ScrapeErrors
	}

	return out, nil
}

// IsValidation reports whether err rejects the caller's input.
func IsValidation(err error) bool {
	var (
		invalid    *schedule.ValidationError
		validation validator.ValidationErrors
	)
	return errors.As(err, &invalid) || errors.As(err, &validation)
}

func toJob(j *entity.Job) *Job {
	return &Job{
		ID:        j.ID,
		GuildID:   j.GuildID,
		Slug:      j.Slug,
		Name:      j.Name,
		ChannelID: j.ChannelID,
		Schedule: Schedule{
			Type:        string(j.Schedule.Frequency),
			Time:        j.Schedule.Time,
			Day:         j.Schedule.DayName(),
			Date:        j.Schedule.Date,
			Description: j.Schedule.String(),
		},
		MinTemperature: j.MinTemperature,
		MaxPrice:       j.MaxPrice,
		Status:         j.Status,
		LastRun:        j.LastRun,
		CreatedAt:      j.CreatedAt,
	}
}
