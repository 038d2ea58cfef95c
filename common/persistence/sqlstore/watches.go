package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
)

const (
	watchColumns = `id, owner_id, query, max_price, created_at`

	updateWatchPriceQuery = `UPDATE watches SET max_price = :max_price WHERE owner_id = :owner_id AND query = :query`

	getWatchQuery = `SELECT ` + watchColumns + ` FROM watches WHERE owner_id = ? AND query = ?`
)

func (h *Handle) UpsertWatch(ctx context.Context, in *entity.UpsertWatchInput) (*entity.UpsertWatchOutput, error) {
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

	args := map[string]any{
		"id":         in.ID,
		"owner_id":   in.OwnerID,
		"query":      in.Query,
		"max_price":  nil,
		"created_at": h.timeArg(h.now()),
	}
	if in.MaxPrice != nil {
		args["max_price"] = *in.MaxPrice
	}

	result, err := tx.NamedExecContext(ctx, h.dialect.insertWatchQuery, args)
	if err != nil {
		return nil, fmt.Errorf("failed to insert watch: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if inserted == 0 {
		if _, err = tx.NamedExecContext(ctx, updateWatchPriceQuery, args); err != nil {
			return nil, fmt.Errorf("failed to update watch: %w", err)
		}
	}

	var m models.Watch
	if err = tx.GetContext(ctx, &m, getWatchQuery, in.OwnerID, in.Query); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &entity.UpsertWatchOutput{
		Watch:   m.Entity(),
		Created: inserted > 0,
	}, nil
}

func (h *Handle) DeleteWatch(ctx context.Context, in *entity.DeleteWatchInput) (*entity.DeleteWatchOutput, error) {
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

	var m models.Watch
	if err = tx.GetContext(ctx, &m, getWatchQuery, in.OwnerID, in.Query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM watch_seen_deals WHERE watch_id = ?`, m.ID); err != nil {
		return nil, fmt.Errorf("failed to delete seen deals of watch %d: %w", m.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, m.ID); err != nil {
		return nil, fmt.Errorf("failed to delete watch %d: %w", m.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &entity.DeleteWatchOutput{}, nil
}

const listWatchesQuery = `SELECT ` + watchColumns + ` FROM watches WHERE owner_id = ? ORDER BY id`

func (h *Handle) ListWatches(ctx context.Context, in *entity.ListWatchesInput) (*entity.ListWatchesOutput, error) {
	watches, err := h.selectWatches(ctx, listWatchesQuery, in.OwnerID)
	if err != nil {
		return nil, err
	}

	return &entity.ListWatchesOutput{Watches: watches}, nil
}

const listWatchesByQueryQuery = `SELECT ` + watchColumns + ` FROM watches WHERE query = ? ORDER BY id`

func (h *Handle) ListWatchesByQuery(ctx context.Context, in *entity.ListWatchesByQueryInput) (*entity.ListWatchesByQueryOutput, error) {
	watches, err := h.selectWatches(ctx, listWatchesByQueryQuery, in.Query)
	if err != nil {
		return nil, err
	}

	return &entity.ListWatchesByQueryOutput{Watches: watches}, nil
}

func (h *Handle) selectWatches(ctx context.Context, query string, args ...any) ([]*entity.Watch, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var dbModels []models.Watch
	if err = db.SelectContext(ctx, &dbModels, query, args...); err != nil {
		return nil, err
	}

	watches := make([]*entity.Watch, 0, len(dbModels))
	for i := range dbModels {
		watches = append(watches, dbModels[i].Entity())
	}

	return watches, nil
}

const listDistinctQueriesQuery = `SELECT DISTINCT query FROM watches ORDER BY query`

func (h *Handle) ListDistinctQueries(ctx context.Context, _ *entity.ListDistinctQueriesInput) (*entity.ListDistinctQueriesOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var queries []string
	if err = db.SelectContext(ctx, &queries, listDistinctQueriesQuery); err != nil {
		return nil, err
	}

	return &entity.ListDistinctQueriesOutput{Queries: queries}, nil
}
