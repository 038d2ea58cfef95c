package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/jmoiron/sqlx"
)

var errUnknownScope = errors.New("unknown seen deal scope")

func seenTable(scope entity.SeenScope) (table, column string, err error) {
	switch scope {
	case entity.ScopeWatch:
		return "watch_seen_deals", "watch_id", nil
	case entity.ScopeJob:
		return "category_seen_deals", "job_id", nil
	default:
		return "", "", fmt.Errorf("%w: %q", errUnknownScope, scope)
	}
}

func (h *Handle) IsDealSeen(ctx context.Context, in *entity.IsDealSeenInput) (*entity.IsDealSeenOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	table, column, err := seenTable(in.Deal.Scope)
	if err != nil {
		return nil, err
	}

	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? AND deal_id = ?`, table, column)
	if err = db.GetContext(ctx, &count, query, in.Deal.ScopeID, in.Deal.DealID); err != nil {
		return nil, err
	}

	return &entity.IsDealSeenOutput{Seen: count > 0}, nil
}

// MarkDealsSeen writes all marks in one transaction. Existing marks are left untouched.
func (h *Handle) MarkDealsSeen(ctx context.Context, in *entity.MarkDealsSeenInput) (*entity.MarkDealsSeenOutput, error) {
	if len(in.Deals) == 0 {
		return &entity.MarkDealsSeenOutput{}, nil
	}

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

	stmts := make(map[entity.SeenScope]*sqlx.NamedStmt, 2)
	defer func() {
		for _, stmt := range stmts {
			_ = stmt.Close()
		}
	}()

	seenAt := h.timeArg(h.now())

	var errs error

	for _, d := range in.Deals {
		stmt, ok := stmts[d.Scope]
		if !ok {
			query := h.dialect.markWatchSeenQuery
			switch d.Scope {
			case entity.ScopeWatch:
			case entity.ScopeJob:
				query = h.dialect.markJobSeenQuery
			default:
				return nil, fmt.Errorf("%w: %q", errUnknownScope, d.Scope)
			}

			if stmt, err = tx.PrepareNamedContext(ctx, query); err != nil {
				return nil, err
			}
			stmts[d.Scope] = stmt
		}

		args := map[string]any{
			"scope_id": d.ScopeID,
			"deal_id":  d.DealID,
			"seen_at":  seenAt,
		}
		if _, err = stmt.ExecContext(ctx, args); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to mark deal %q for %s %d: %w", d.DealID, d.Scope, d.ScopeID, err))
		}
	}

	if errs != nil {
		return nil, errs
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &entity.MarkDealsSeenOutput{}, nil
}

func (h *Handle) PurgeSeenDeals(ctx context.Context, in *entity.PurgeSeenDealsInput) (*entity.PurgeSeenDealsOutput, error) {
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

	var purged int64

	for _, table := range []string{"watch_seen_deals", "category_seen_deals"} {
		result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE seen_at < ?`, table), h.timeArg(in.Before))
		if err != nil {
			return nil, fmt.Errorf("failed to purge %s: %w", table, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		purged += rows
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &entity.PurgeSeenDealsOutput{Purged: purged}, nil
}
