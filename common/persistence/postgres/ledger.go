package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/jackc/pgx/v5"
)

const (
	isWatchDealSeenQuery = `SELECT EXISTS (SELECT 1 FROM watch_seen_deals WHERE watch_id = @scope_id AND deal_id = @deal_id);`
	isJobDealSeenQuery   = `SELECT EXISTS (SELECT 1 FROM category_seen_deals WHERE job_id = @scope_id AND deal_id = @deal_id);`

	// Marks for a watch or job deleted since the cycle started are dropped instead of failing the
	// foreign key, which would roll back the whole batch.
	markWatchDealSeenQuery = `
INSERT INTO watch_seen_deals (watch_id, deal_id)
SELECT $1::bigint, $2::text
WHERE EXISTS (SELECT 1 FROM watches WHERE id = $1::bigint)
ON CONFLICT DO NOTHING;
`
	markJobDealSeenQuery = `
INSERT INTO category_seen_deals (job_id, deal_id)
SELECT $1::bigint, $2::text
WHERE EXISTS (SELECT 1 FROM category_jobs WHERE id = $1::bigint)
ON CONFLICT DO NOTHING;
`
)

var errUnknownScope = errors.New("unknown seen deal scope")

func (h *Handle) IsDealSeen(ctx context.Context, in *entity.IsDealSeenInput) (*entity.IsDealSeenOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var query string
	switch in.Deal.Scope {
	case entity.ScopeWatch:
		query = isWatchDealSeenQuery
	case entity.ScopeJob:
		query = isJobDealSeenQuery
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownScope, in.Deal.Scope)
	}

	var seen bool
	if err = db.QueryRow(ctx, query, pgx.NamedArgs{"scope_id": in.Deal.ScopeID, "deal_id": in.Deal.DealID}).Scan(&seen); err != nil {
		return nil, err
	}

	return &entity.IsDealSeenOutput{Seen: seen}, nil
}

// MarkDealsSeen sends every mark in one batch, which the server runs as a single implicit
// transaction.
func (h *Handle) MarkDealsSeen(ctx context.Context, in *entity.MarkDealsSeenInput) (*entity.MarkDealsSeenOutput, error) {
	if len(in.Deals) == 0 {
		return &entity.MarkDealsSeenOutput{}, nil
	}

	db, err := h.db()
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}

	for _, d := range in.Deals {
		switch d.Scope {
		case entity.ScopeWatch:
			batch.Queue(markWatchDealSeenQuery, d.ScopeID, d.DealID)
		case entity.ScopeJob:
			batch.Queue(markJobDealSeenQuery, d.ScopeID, d.DealID)
		default:
			return nil, fmt.Errorf("%w: %q", errUnknownScope, d.Scope)
		}
	}

	br := db.SendBatch(ctx, batch)

	var errs error

	for _, d := range in.Deals {
		if _, err = br.Exec(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to mark deal %q for %s %d: %w", d.DealID, d.Scope, d.ScopeID, err))
		}
	}

	if err = br.Close(); err != nil {
		errs = errors.Join(errs, err)
	}

	if errs != nil {
		return nil, fmt.Errorf("failed to mark deals seen: %w", errs)
	}

	return &entity.MarkDealsSeenOutput{}, nil
}

func (h *Handle) PurgeSeenDeals(ctx context.Context, in *entity.PurgeSeenDealsInput) (*entity.PurgeSeenDealsOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var purged int64

	err = pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		for _, query := range []string{
			`DELETE FROM watch_seen_deals WHERE seen_at < @before;`,
			`DELETE FROM category_seen_deals WHERE seen_at < @before;`,
		} {
			tag, err := tx.Exec(ctx, query, pgx.NamedArgs{"before": in.Before})
			if err != nil {
				return err
			}
			purged += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purge seen deals: %w", err)
	}

	return &entity.PurgeSeenDealsOutput{Purged: purged}, nil
}
