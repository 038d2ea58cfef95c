package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
	"strings"
)

const jobColumns = `
    id, guild_id, slug, name, channel_id, schedule_type, schedule_time, schedule_day, schedule_date,
    min_temperature, max_price, status, last_run, created_at`

func (h *Handle) CreateJob(ctx context.Context, in *entity.CreateJobInput) (*entity.CreateJobOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	result, err := db.NamedExecContext(ctx, h.dialect.insertJobQuery, models.JobArgs(in.Job, h.now(), h.timeArg))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, entity.ErrAlreadyExists
	}

	return &entity.CreateJobOutput{}, nil
}

const (
	getJobByIDQuery   = `SELECT ` + jobColumns + ` FROM category_jobs WHERE id = ?`
	getJobBySlugQuery = `SELECT ` + jobColumns + ` FROM category_jobs WHERE guild_id = ? AND slug = ?`
)

func (h *Handle) GetJob(ctx context.Context, in *entity.GetJobInput) (*entity.GetJobOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var m models.Job

	if in.ID != 0 {
		err = db.GetContext(ctx, &m, getJobByIDQuery, in.ID)
	} else {
		err = db.GetContext(ctx, &m, getJobBySlugQuery, in.GuildID, in.Slug)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}

	return &entity.GetJobOutput{Job: m.Entity()}, nil
}

const listJobsQuery = `SELECT ` + jobColumns + ` FROM category_jobs WHERE guild_id = ?`

func (h *Handle) ListJobs(ctx context.Context, in *entity.ListJobsInput) (*entity.ListJobsOutput, error) {
	var sb strings.Builder
	sb.WriteString(listJobsQuery)
	args := []any{in.GuildID}

	if in.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, string(*in.Status))
	}
	sb.WriteString(" ORDER BY id")

	jobs, err := h.selectJobs(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}

	return &entity.ListJobsOutput{Jobs: jobs}, nil
}

const listActiveJobsQuery = `SELECT ` + jobColumns + ` FROM category_jobs WHERE status = ? ORDER BY id`

func (h *Handle) ListActiveJobs(ctx context.Context, _ *entity.ListActiveJobsInput) (*entity.ListActiveJobsOutput, error) {
	jobs, err := h.selectJobs(ctx, listActiveJobsQuery, string(entity.JobStatusActive))
	if err != nil {
		return nil, err
	}

	return &entity.ListActiveJobsOutput{Jobs: jobs}, nil
}

func (h *Handle) selectJobs(ctx context.Context, query string, args ...any) ([]*entity.Job, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var dbModels []models.Job
	if err = db.SelectContext(ctx, &dbModels, query, args...); err != nil {
		return nil, err
	}

	jobs := make([]*entity.Job, 0, len(dbModels))
	for i := range dbModels {
		jobs = append(jobs, dbModels[i].Entity())
	}

	return jobs, nil
}

const (
	updateJobStatusQuery = `UPDATE category_jobs SET status = ? WHERE guild_id = ? AND slug = ?`
	jobExistsQuery       = `SELECT COUNT(*) FROM category_jobs WHERE guild_id = ? AND slug = ?`
)

func (h *Handle) UpdateJobStatus(ctx context.Context, in *entity.UpdateJobStatusInput) (*entity.UpdateJobStatusOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx, updateJobStatusQuery, string(in.Status), in.GuildID, in.Slug)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	// MySQL reports unchanged rows as unaffected.
	if rows == 0 {
		var count int
		if err = db.GetContext(ctx, &count, jobExistsQuery, in.GuildID, in.Slug); err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, entity.ErrNotFound
		}
	}

	return &entity.UpdateJobStatusOutput{}, nil
}

const updateJobLastRunQuery = `UPDATE category_jobs SET last_run = ? WHERE id = ?`

func (h *Handle) UpdateJobLastRun(ctx context.Context, in *entity.UpdateJobLastRunInput) (*entity.UpdateJobLastRunOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	if _, err = db.ExecContext(ctx, updateJobLastRunQuery, h.timeArg(in.LastRun), in.ID); err != nil {
		return nil, fmt.Errorf("failed to update last run of job %d: %w", in.ID, err)
	}

	return &entity.UpdateJobLastRunOutput{}, nil
}

func (h *Handle) DeleteJob(ctx context.Context, in *entity.DeleteJobInput) (*entity.DeleteJobOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id int64
	if err = tx.GetContext(ctx, &id, `SELECT id FROM category_jobs WHERE guild_id = ? AND slug = ?`, in.GuildID, in.Slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}

	for _, query := range []string{
		`DELETE FROM category_seen_deals WHERE job_id = ?`,
		`DELETE FROM category_job_stats WHERE job_id = ?`,
		`DELETE FROM category_jobs WHERE id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, query, id); err != nil {
			return nil, fmt.Errorf("failed to delete job %d: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &entity.DeleteJobOutput{}, nil
}
