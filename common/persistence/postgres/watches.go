package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
	"github.com/jackc/pgx/v5"
)

const upsertWatchQuery = `
INSERT INTO watches (id, owner_id, query, max_price)
VALUES (@id, @owner_id, @query, @max_price)
ON CONFLICT (owner_id, query) DO UPDATE
SET max_price = EXCLUDED.max_price
RETURNING id, owner_id, query, max_price, created_at, (xmax = 0) AS created;
`

func (h *Handle) UpsertWatch(ctx context.Context, in *entity.UpsertWatchInput) (*entity.UpsertWatchOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	type upserted struct {
		models.Watch
		Created bool `db:"created"`
	}

	args := pgx.NamedArgs{
		"id":        in.ID,
		"owner_id":  in.OwnerID,
		"query":     in.Query,
		"max_price": in.MaxPrice,
	}

	rows, err := db.Query(ctx, upsertWatchQuery, args)
	if err != nil {
		return nil, err
	}

	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[upserted])
	if err != nil {
		return nil, fmt.Errorf("failed to upsert watch: %w", err)
	}

	return &entity.UpsertWatchOutput{
		Watch:   m.Watch.Entity(),
		Created: m.Created,
	}, nil
}

const deleteWatchQuery = `DELETE FROM watches WHERE owner_id = @owner_id AND query = @query;`

func (h *Handle) DeleteWatch(ctx context.Context, in *entity.DeleteWatchInput) (*entity.DeleteWatchOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	args := pgx.NamedArgs{
		"owner_id": in.OwnerID,
		"query":    in.Query,
	}

	tag, err := db.Exec(ctx, deleteWatchQuery, args)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		return nil, entity.ErrNotFound
	}

	return &entity.DeleteWatchOutput{}, nil
}

const (
	watchColumns = `id, owner_id, query, max_price, created_at`

	listWatchesQuery        = `SELECT ` + watchColumns + ` FROM watches WHERE owner_id = @owner_id ORDER BY id;`
	listWatchesByQueryQuery = `SELECT ` + watchColumns + ` FROM watches WHERE query = @query ORDER BY id;`
)

func (h *Handle) ListWatches(ctx context.Context, in *entity.ListWatchesInput) (*entity.ListWatchesOutput, error) {
	watches, err := h.selectWatches(ctx, listWatchesQuery, pgx.NamedArgs{"owner_id": in.OwnerID})
	if err != nil {
		return nil, err
	}

	return &entity.ListWatchesOutput{Watches: watches}, nil
}

func (h *Handle) ListWatchesByQuery(ctx context.Context, in *entity.ListWatchesByQueryInput) (*entity.ListWatchesByQueryOutput, error) {
	watches, err := h.selectWatches(ctx, listWatchesByQueryQuery, pgx.NamedArgs{"query": in.Query})
	if err != nil {
		return nil, err
	}

	return &entity.ListWatchesByQueryOutput{Watches: watches}, nil
}

func (h *Handle) selectWatches(ctx context.Context, query string, args pgx.NamedArgs) ([]*entity.Watch, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}

	dbModels, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Watch])
	if err != nil {
		return nil, err
	}

	watches := make([]*entity.Watch, 0, len(dbModels))
	for i := range dbModels {
		watches = append(watches, dbModels[i].Entity())
	}

	return watches, nil
}

const listDistinctQueriesQuery = `SELECT DISTINCT query FROM watches ORDER BY query;`

func (h *Handle) ListDistinctQueries(ctx context.Context, _ *entity.ListDistinctQueriesInput) (*entity.ListDistinctQueriesOutput, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listDistinctQueriesQuery)
	if err != nil {
		return nil, err
	}

	queries, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	return &entity.ListDistinctQueriesOutput{Queries: queries}, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrNotFound
	}
	return err
}
