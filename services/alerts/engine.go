// Package alerts matches fresh deals against personal watches and notifies their owners.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/ledger"
	"github.com/forbiddencoding/deal-notifier/common/metrics"
	"github.com/forbiddencoding/deal-notifier/common/notify"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/price"
	"log/slog"
	"time"
)

type (
	WatchStore interface {
		ListDistinctQueries(ctx context.Context, in *entity.ListDistinctQueriesInput) (*entity.ListDistinctQueriesOutput, error)
		ListWatchesByQuery(ctx context.Context, in *entity.ListWatchesByQueryInput) (*entity.ListWatchesByQueryOutput, error)
	}

	Engine struct {
		store         WatchStore
		source        deals.Source
		ledger        *ledger.Ledger
		metrics       *metrics.Metrics
		logger        *slog.Logger
		fetchLimit    int
		throttleAfter int
		throttleDelay time.Duration
		sleep         func(ctx context.Context, d time.Duration) error
	}
)

func NewEngine(
	store WatchStore,
	source deals.Source,
	ledger *ledger.Ledger,
	conf *config.Alerts,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:         store,
		source:        source,
		ledger:        ledger,
		metrics:       metrics,
		logger:        logger.With("component", "alerts"),
		fetchLimit:    conf.FetchLimit,
		throttleAfter: conf.ThrottleAfter,
		throttleDelay: conf.ThrottleDelay,
		sleep:         sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunCycle fetches the newest deals for every watched query and returns a notification for each
// (watch, deal) pair that was never notified before and passes the watch's price ceiling. The
// new pairs are recorded in one batch before returning. A failed fetch only skips its query; a
// store failure or cancellation aborts the cycle without recording anything.
func (e *Engine) RunCycle(ctx context.Context) ([]*notify.Notification, error) {
	queries, err := e.store.ListDistinctQueries(ctx, &entity.ListDistinctQueriesInput{})
	if err != nil {
		return nil, fmt.Errorf("list watched queries: %w", err)
	}

	var (
		cycle         = e.ledger.NewCycle()
		notifications []*notify.Notification
		throttle      = len(queries.Queries) > e.throttleAfter
	)

	for i, query := range queries.Queries {
		if throttle && i > 0 {
			if err = e.sleep(ctx, e.throttleDelay); err != nil {
				return nil, err
			}
		}

		matched, err := e.matchQuery(ctx, cycle, query)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, matched...)
	}

	if err = cycle.Flush(ctx); err != nil {
		return nil, fmt.Errorf("record notified deals: %w", err)
	}

	return notifications, nil
}

func (e *Engine) matchQuery(ctx context.Context, cycle *ledger.Cycle, query string) ([]*notify.Notification, error) {
	found, err := e.source.Search(ctx, &deals.SearchInput{
		Query: query,
		Limit: e.fetchLimit,
		Sort:  deals.SortNew,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.metrics.SourceFailures.WithLabelValues("search").Inc()
		e.logger.WarnContext(ctx, "skipping query after source failure", slog.String("query", query), slog.Any("error", err))
		return nil, nil
	}

	if len(found.Deals) == 0 {
		return nil, nil
	}

	watches, err := e.store.ListWatchesByQuery(ctx, &entity.ListWatchesByQueryInput{Query: query})
	if err != nil {
		return nil, fmt.Errorf("list watches for %q: %w", query, err)
	}

	if len(watches.Watches) == 0 {
		return nil, nil
	}

	listings := found.Deals
	if len(listings) > e.fetchLimit {
		listings = listings[:e.fetchLimit]
	}

	var matched []*notify.Notification

	for _, deal := range listings {
		value := price.Normalize(deal.Price)

		for _, watch := range watches.Watches {
			key := ledger.WatchKey(watch.ID, deal.ID)

			seen, err := cycle.Seen(ctx, key)
			if err != nil {
				return nil, err
			}
			if seen {
				continue
			}

			if watch.MaxPrice != nil && value > *watch.MaxPrice {
				continue
			}

			cycle.Stage(key)
			matched = append(matched, &notify.Notification{
				RecipientID: watch.OwnerID,
				Deal:        deal,
				Query:       query,
			})
		}
	}

	return matched, nil
}

// isAbort reports whether err ended a cycle because the process is shutting down.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
