package sqlstore

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
)

func (h *Handle) IncrementJobStats(ctx context.Context, in *entity.IncrementJobStatsInput) (*entity.IncrementJobStatsOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	args := map[string]any{
		"job_id":        in.JobID,
		"stat_date":     in.Date,
		"deals_found":   in.DealsFound,
		"deals_sent":    in.DealsSent,
		"scrape_errors": in.ScrapeErrors,
	}

	if _, err = db.NamedExecContext(ctx, h.dialect.incrementStatsQuery, args); err != nil {
		return nil, fmt.Errorf("failed to increment stats of job %d: %w", in.JobID, err)
	}

	return &entity.IncrementJobStatsOutput{}, nil
}

const listJobStatsQuery = `
SELECT job_id, stat_date, deals_found, deals_sent, scrape_errors
FROM category_job_stats
WHERE job_id = ? AND stat_date >= ?
ORDER BY stat_date DESC`

func (h *Handle) ListJobStats(ctx context.Context, in *entity.ListJobStatsInput) (*entity.ListJobStatsOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var dbModels []models.JobStats
	if err = db.SelectContext(ctx, &dbModels, listJobStatsQuery, in.JobID, in.Since); err != nil {
		return nil, err
	}

	stats := make([]*entity.JobStats, 0, len(dbModels))
	for i := range dbModels {
		stats = append(stats, dbModels[i].Entity())
	}

	return &entity.ListJobStatsOutput{Stats: stats}, nil
}
