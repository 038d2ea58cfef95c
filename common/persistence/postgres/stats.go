package postgres

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
	"github.com/jackc/pgx/v5"
)

const incrementJobStatsQuery = `
INSERT INTO category_job_stats (job_id, stat_date, deals_found, deals_sent, scrape_errors)
SELECT @job_id::bigint, @stat_date::date, @deals_found::integer, @deals_sent::integer, @scrape_errors::integer
WHERE EXISTS (SELECT 1 FROM category_jobs WHERE id = @job_id::bigint)
ON CONFLICT (job_id, stat_date) DO UPDATE
SET deals_found = category_job_stats.deals_found + EXCLUDED.deals_found,
    deals_sent = category_job_stats.deals_sent + EXCLUDED.deals_sent,
    scrape_errors = category_job_stats.scrape_errors + EXCLUDED.scrape_errors;
`

func (h *Handle) IncrementJobStats(ctx context.Context, in *entity.IncrementJobStatsInput) (*entity.IncrementJobStatsOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	args := pgx.NamedArgs{
		"job_id":        in.JobID,
		"stat_date":     in.Date,
		"deals_found":   in.DealsFound,
		"deals_sent":    in.DealsSent,
		"scrape_errors": in.ScrapeErrors,
	}

	if _, err = db.Exec(ctx, incrementJobStatsQuery, args); err != nil {
		return nil, fmt.Errorf("failed to increment stats of job %d: %w", in.JobID, err)
	}

	return &entity.IncrementJobStatsOutput{}, nil
}

const listJobStatsQuery = `
SELECT
    job_id,
    to_char(stat_date, 'YYYY-MM-DD') AS stat_date,
    deals_found,
    deals_sent,
    scrape_errors
FROM
    category_job_stats
WHERE
    job_id = @job_id AND stat_date >= @since::date
ORDER BY
    stat_date DESC;
`

func (h *Handle) ListJobStats(ctx context.Context, in *entity.ListJobStatsInput) (*entity.ListJobStatsOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listJobStatsQuery, pgx.NamedArgs{"job_id": in.JobID, "since": in.Since})
	if err != nil {
		return nil, err
	}

	dbModels, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.JobStats])
	if err != nil {
		return nil, err
	}

	stats := make([]*entity.JobStats, 0, len(dbModels))
	for i := range dbModels {
		stats = append(stats, dbModels[i].Entity())
	}

	return &entity.ListJobStatsOutput{Stats: stats}, nil
}
