package watches

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/go-playground/validator/v10"
	"github.com/sony/sonyflake/v2"
	"strings"
)

type (
	Servicer interface {
		UpsertWatch(ctx context.Context, in *UpsertWatchInput) (*UpsertWatchOutput, error)
		DeleteWatch(ctx context.Context, in *DeleteWatchInput) (*DeleteWatchOutput, error)
		ListWatches(ctx context.Context, in *ListWatchesInput) (*ListWatchesOutput, error)
	}

	Service struct {
		db        persistence.Persistence
		sonyflake *sonyflake.Sonyflake
		validator *validator.Validate
	}
)

var _ Servicer = (*Service)(nil)

func NewService(
	db persistence.Persistence,
	sonyflake *sonyflake.Sonyflake,
	validator *validator.Validate,
) (Servicer, error) {
	return &Service{
		db:        db,
		sonyflake: sonyflake,
		validator: validator,
	}, nil
}

// NormalizeQuery trims the query, collapses inner whitespace and lower-cases it so equivalent
// queries share one fetch.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func (s *Service) UpsertWatch(ctx context.Context, in *UpsertWatchInput) (*UpsertWatchOutput, error) {
	in.Query = NormalizeQuery(in.Query)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	id, err := s.sonyflake.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	res, err := s.db.UpsertWatch(ctx, &entity.UpsertWatchInput{
		ID:       id,
		OwnerID:  in.OwnerID,
		Query:    in.Query,
		MaxPrice: in.MaxPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert watch: %w", err)
	}

	return &UpsertWatchOutput{
		Watch:   toWatch(res.Watch),
		Created: res.Created,
	}, nil
}

func (s *Service) DeleteWatch(ctx context.Context, in *DeleteWatchInput) (*DeleteWatchOutput, error) {
	in.Query = NormalizeQuery(in.Query)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.db.DeleteWatch(ctx, &entity.DeleteWatchInput{
		OwnerID: in.OwnerID,
		Query:   in.Query,
	}); err != nil {
		return nil, fmt.Errorf("failed to delete watch: %w", err)
	}

	return &DeleteWatchOutput{}, nil
}

func (s *Service) ListWatches(ctx context.Context, in *ListWatchesInput) (*ListWatchesOutput, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	res, err := s.db.ListWatches(ctx, &entity.ListWatchesInput{OwnerID: in.OwnerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list watches: %w", err)
	}

	out := make([]*Watch, 0, len(res.Watches))
	for _, w := range res.Watches {
		out = append(out, toWatch(w))
	}

	return &ListWatchesOutput{Watches: out}, nil
}

func toWatch(w *entity.Watch) *Watch {
	return &Watch{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Query:     w.Query,
		MaxPrice:  w.MaxPrice,
		CreatedAt: w.CreatedAt,
	}
}
