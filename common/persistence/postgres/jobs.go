package postgres

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
	"github.com/jackc/pgx/v5"
	"strings"
	"time"
)

const createJobQuery = `
INSERT INTO category_jobs (
    id, guild_id, slug, name, channel_id, schedule_type, schedule_time, schedule_day, schedule_date,
    min_temperature, max_price, status, created_at
)
VALUES (
    @id, @guild_id, @slug, @name, @channel_id, @schedule_type, @schedule_time, @schedule_day, @schedule_date,
    @min_temperature, @max_price, @status, @created_at
)
ON CONFLICT DO NOTHING;
`

func (h *Handle) CreateJob(ctx context.Context, in *entity.CreateJobInput) (*entity.CreateJobOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	args := pgx.NamedArgs(models.JobArgs(in.Job, time.Now(), func(t time.Time) any { return t }))

	tag, err := db.Exec(ctx, createJobQuery, args)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, entity.ErrAlreadyExists
	}

	return &entity.CreateJobOutput{}, nil
}

const (
	jobColumns = `
    id, guild_id, slug, name, channel_id, schedule_type, schedule_time, schedule_day, schedule_date,
    min_temperature, max_price, status, last_run, created_at`

	getJobByIDQuery   = `SELECT ` + jobColumns + ` FROM category_jobs WHERE id = @id;`
	getJobBySlugQuery = `SELECT ` + jobColumns + ` FROM category_jobs WHERE guild_id = @guild_id AND slug = @slug;`
)

func (h *Handle) GetJob(ctx context.Context, in *entity.GetJobInput) (*entity.GetJobOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	query, args := getJobBySlugQuery, pgx.NamedArgs{"guild_id": in.GuildID, "slug": in.Slug}
	if in.ID != 0 {
		query, args = getJobByIDQuery, pgx.NamedArgs{"id": in.ID}
	}

	rows, err := db.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}

	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.Job])
	if err != nil {
		return nil, notFound(err)
	}

	return &entity.GetJobOutput{Job: m.Entity()}, nil
}

func (h *Handle) ListJobs(ctx context.Context, in *entity.ListJobsInput) (*entity.ListJobsOutput, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + jobColumns + ` FROM category_jobs WHERE guild_id = @guild_id`)
	args := pgx.NamedArgs{"guild_id": in.GuildID}

	if in.Status != nil {
		sb.WriteString(" AND status = @status")
		args["status"] = string(*in.Status)
	}
	sb.WriteString(" ORDER BY id;")

	jobs, err := h.selectJobs(ctx, sb.String(), args)
	if err != nil {
		return nil, err
	}

	return &entity.ListJobsOutput{Jobs: jobs}, nil
}

const listActiveJobsQuery = `SELECT ` + jobColumns + ` FROM category_jobs WHERE status = @status ORDER BY id;`

func (h *Handle) ListActiveJobs(ctx context.Context, _ *entity.ListActiveJobsInput) (*entity.ListActiveJobsOutput, error) {
	jobs, err := h.selectJobs(ctx, listActiveJobsQuery, pgx.NamedArgs{"status": string(entity.JobStatusActive)})
	if err != nil {
		return nil, err
	}

	return &entity.ListActiveJobsOutput{Jobs: jobs}, nil
}

func (h *Handle) selectJobs(ctx context.Context, query string, args pgx.NamedArgs) ([]*entity.Job, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}

	dbModels, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Job])
	if err != nil {
		return nil, err
	}

	jobs := make([]*entity.Job, 0, len(dbModels))
	for i := range dbModels {
		jobs = append(jobs, dbModels[i].Entity())
	}

	return jobs, nil
}

const updateJobStatusQuery = `UPDATE category_jobs SET status = @status WHERE guild_id = @guild_id AND slug = @slug;`

func (h *Handle) UpdateJobStatus(ctx context.Context, in *entity.UpdateJobStatusInput) (*entity.UpdateJobStatusOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	args := pgx.NamedArgs{
		"status":   string(in.Status),
		"guild_id": in.GuildID,
		"slug":     in.Slug,
	}

	tag, err := db.Exec(ctx, updateJobStatusQuery, args)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		return nil, entity.ErrNotFound
	}

	return &entity.UpdateJobStatusOutput{}, nil
}

const updateJobLastRunQuery = `UPDATE category_jobs SET last_run = @last_run WHERE id = @id;`

func (h *Handle) UpdateJobLastRun(ctx context.Context, in *entity.UpdateJobLastRunInput) (*entity.UpdateJobLastRunOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(ctx, updateJobLastRunQuery, pgx.NamedArgs{"last_run": in.LastRun, "id": in.ID}); err != nil {
		return nil, fmt.Errorf("failed to update last run of job %d: %w", in.ID, err)
	}

	return &entity.UpdateJobLastRunOutput{}, nil
}

const deleteJobQuery = `DELETE FROM category_jobs WHERE guild_id = @guild_id AND slug = @slug;`

func (h *Handle) DeleteJob(ctx context.Context, in *entity.DeleteJobInput) (*entity.DeleteJobOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	tag, err := db.Exec(ctx, deleteJobQuery, pgx.NamedArgs{"guild_id": in.GuildID, "slug": in.Slug})
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		return nil, entity.ErrNotFound
	}

	return &entity.DeleteJobOutput{}, nil
}
