// Package ledger records which deals have already been notified, per watch and per job. A Cycle
// gives one polling pass an in-memory view over the durable records and buffers new marks until
// the pass is complete.
package ledger

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"log/slog"
	"time"
)

type (
	Scope struct {
		Kind entity.SeenScope
		ID   int64
	}

	Key struct {
		Scope  Scope
		DealID string
	}

	Store interface {
		IsDealSeen(ctx context.Context, in *entity.IsDealSeenInput) (*entity.IsDealSeenOutput, error)
		MarkDealsSeen(ctx context.Context, in *entity.MarkDealsSeenInput) (*entity.MarkDealsSeenOutput, error)
		PurgeSeenDeals(ctx context.Context, in *entity.PurgeSeenDealsInput) (*entity.PurgeSeenDealsOutput, error)
	}

	// Cache is an optional read-through layer in front of the store. Cache failures are logged
	// and otherwise ignored; the store stays authoritative.
	Cache interface {
		Seen(ctx context.Context, key Key) (bool, error)
		Remember(ctx context.Context, keys []Key) error
	}

	Ledger struct {
		store  Store
		cache  Cache
		logger *slog.Logger
		now    func() time.Time
	}
)

func WatchKey(watchID int64, dealID string) Key {
	return Key{Scope: Scope{Kind: entity.ScopeWatch, ID: watchID}, DealID: dealID}
}

func JobKey(jobID int64, dealID string) Key {
	return Key{Scope: Scope{Kind: entity.ScopeJob, ID: jobID}, DealID: dealID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Scope.Kind, k.Scope.ID, k.DealID)
}

func (k Key) record() *entity.SeenDeal {
	return &entity.SeenDeal{Scope: k.Scope.Kind, ScopeID: k.Scope.ID, DealID: k.DealID}
}

// New builds a ledger over store. cache may be nil.
func New(store Store, cache Cache, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "ledger"),
		now:    time.Now,
	}
}

// Seen reports whether key has a durable record.
func (l *Ledger) Seen(ctx context.Context, key Key) (bool, error) {
	if l.cache != nil {
		hit, err := l.cache.Seen(ctx, key)
		if err != nil {
			l.logger.WarnContext(ctx, "seen cache lookup failed", slog.String("key", key.String()), slog.Any("error", err))
		} else if hit {
			return true, nil
		}
	}

	out, err := l.store.IsDealSeen(ctx, &entity.IsDealSeenInput{Deal: key.record()})
	if err != nil {
		return false, fmt.Errorf("check seen deal %s: %w", key, err)
	}

	if out.Seen && l.cache != nil {
		l.remember(ctx, []Key{key})
	}

	return out.Seen, nil
}

// MarkBatch persists keys in a single idempotent write.
func (l *Ledger) MarkBatch(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}

	records := make([]*entity.SeenDeal, 0, len(keys))
	for _, k := range keys {
		records = append(records, k.record())
	}

	if _, err := l.store.MarkDealsSeen(ctx, &entity.MarkDealsSeenInput{Deals: records}); err != nil {
		return fmt.Errorf("mark %d deals seen: %w", len(keys), err)
	}

	if l.cache != nil {
		l.remember(ctx, keys)
	}

	return nil
}

// PurgeOlderThan removes records of both scopes older than age and returns how many were removed.
func (l *Ledger) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	out, err := l.store.PurgeSeenDeals(ctx, &entity.PurgeSeenDealsInput{Before: l.now().Add(-age)})
	if err != nil {
		return 0, fmt.Errorf("purge seen deals: %w", err)
	}
	return out.Purged, nil
}

func (l *Ledger) remember(ctx context.Context, keys []Key) {
	if err := l.cache.Remember(ctx, keys); err != nil {
		l.logger.WarnContext(ctx, "seen cache update failed", slog.Int("keys", len(keys)), slog.Any("error", err))
	}
}

// NewCycle starts a fresh per-pass view.
func (l *Ledger) NewCycle() *Cycle {
	return &Cycle{
		ledger: l,
		known:  make(map[Key]struct{}),
	}
}
