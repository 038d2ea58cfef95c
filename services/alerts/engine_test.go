package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/ledger"
	"github.com/forbiddencoding/deal-notifier/common/metrics"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	results  map[string][]*deals.Deal
	failures map[string]error
	searches []deals.SearchInput
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		results:  make(map[string][]*deals.Deal),
		failures: make(map[string]error),
	}
}

func (s *fakeSource) Search(_ context.Context, in *deals.SearchInput) (*deals.SearchOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searches = append(s.searches, *in)
	if err, ok := s.failures[in.Query]; ok {
		return nil, err
	}
	return &deals.SearchOutput{Deals: s.results[in.Query]}, nil
}

func (s *fakeSource) ByCategory(context.Context, *deals.ByCategoryInput) (*deals.ByCategoryOutput, error) {
	return nil, errors.New("not used")
}

type failingQueries struct {
	*memory.Handle
}

func (failingQueries) ListDistinctQueries(context.Context, *entity.ListDistinctQueriesInput) (*entity.ListDistinctQueriesOutput, error) {
	return nil, errors.New("connection refused")
}

type harness struct {
	store   *memory.Handle
	source  *fakeSource
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	engine  *Engine
	sleeps  []time.Duration
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   memory.NewHandle(),
		source:  newFakeSource(),
		metrics: metrics.New(prometheus.NewRegistry(), "test"),
	}
	h.ledger = ledger.New(h.store, nil, discardLogger())

	conf := config.Default().Alerts
	h.engine = NewEngine(h.store, h.source, h.ledger, &conf, h.metrics, discardLogger())
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}

	return h
}

func (h *harness) watch(t *testing.T, id, owner int64, query string, maxPrice *float64) {
	t.Helper()

	_, err := h.store.UpsertWatch(context.Background(), &entity.UpsertWatchInput{
		ID:       id,
		OwnerID:  owner,
		Query:    query,
		MaxPrice: maxPrice,
	})
	require.NoError(t, err)
}

func ptr[T any](v T) *T {
	return &v
}

func deal(id, price string) *deals.Deal {
	return &deals.Deal{ID: id, Title: id, Price: &price}
}

func TestRunCycleLaptopEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.watch(t, 10, 100, "laptop", ptr(2000.0))
	h.source.results["laptop"] = []*deals.Deal{deal("d1", "1999 zł")}

	notifications, err := h.engine.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	n := notifications[0]
	assert.Equal(t, int64(100), n.RecipientID)
	assert.Equal(t, "laptop", n.Query)
	assert.Equal(t, "d1", n.Deal.ID)

	seen, err := h.ledger.Seen(ctx, ledger.WatchKey(10, "d1"))
	require.NoError(t, err)
	assert.True(t, seen)

	require.Len(t, h.source.searches, 1)
	assert.Equal(t, deals.SearchInput{Query: "laptop", Limit: 5, Sort: deals.SortNew}, h.source.searches[0])
}

func TestRunCycleCapsListingsAtFetchLimit(t *testing.T) {
	h := newHarness(t)

	h.watch(t, 10, 100, "monitor", nil)
	for i := range 8 {
		h.source.results["monitor"] = append(h.source.results["monitor"], deal(fmt.Sprintf("m%d", i), "100"))
	}

	notifications, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, notifications, 5)
	for i, n := range notifications {
		assert.Equal(t, fmt.Sprintf("m%d", i), n.Deal.ID)
	}

	seen, err := h.ledger.Seen(context.Background(), ledger.WatchKey(10, "m5"))
	require.NoError(t, err)
	assert.False(t, seen, "listings past the limit are left for a later cycle")
}

func TestRunCyclePriceCeilingIsPerWatch(t *testing.T) {
	h := newHarness(t)

	h.watch(t, 1, 100, "gpu", ptr(1500.0))
	h.watch(t, 2, 200, "gpu", ptr(2500.0))
	h.watch(t, 3, 300, "gpu", nil)
	h.source.results["gpu"] = []*deals.Deal{deal("rtx", "2 099,00 zł")}

	notifications, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	recipients := make([]int64, 0, len(notifications))
	for _, n := range notifications {
		recipients = append(recipients, n.RecipientID)
	}
	assert.ElementsMatch(t, []int64{200, 300}, recipients)

	// The rejected pair stays unmarked so a looser ceiling later still sees the deal.
	seen, err := h.ledger.Seen(context.Background(), ledger.WatchKey(1, "rtx"))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.watch(t, 1, 100, "laptop", nil)
	h.watch(t, 2, 200, "phone", nil)
	h.source.results["laptop"] = []*deals.Deal{deal("d1", "10"), deal("d2", "20")}
	h.source.results["phone"] = []*deals.Deal{deal("p1", "Darmowa")}

	first, err := h.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := h.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRunCycleNeverRepeatsAPair(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.watch(t, 1, 100, "laptop", nil)

	delivered := make(map[string]int)
	for i := range 5 {
		listing := []*deals.Deal{deal(fmt.Sprintf("d%d", i), "1")}
		if i > 0 {
			listing = append(listing, deal(fmt.Sprintf("d%d", i-1), "1"))
		}
		// The same deal listed twice in one page is still a single notification.
		listing = append(listing, listing[0])
		h.source.results["laptop"] = listing

		notifications, err := h.engine.RunCycle(ctx)
		require.NoError(t, err)
		for _, n := range notifications {
			delivered[n.Deal.ID]++
		}
	}

	require.Len(t, delivered, 5)
	for id, count := range delivered {
		assert.Equal(t, 1, count, id)
	}
}

func TestRunCycleSkipsFailedQuery(t *testing.T) {
	h := newHarness(t)

	h.watch(t, 1, 100, "broken", nil)
	h.watch(t, 2, 200, "laptop", nil)
	h.source.failures["broken"] = fmt.Errorf("%w: unexpected status 503", deals.ErrSourceFailure)
	h.source.results["laptop"] = []*deals.Deal{deal("d1", "1")}

	notifications, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, int64(200), notifications[0].RecipientID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SourceFailures.WithLabelValues("search")))
}

func TestRunCycleSkipsQueryWithoutSubscribers(t *testing.T) {
	h := newHarness(t)

	h.watch(t, 1, 100, "laptop", nil)
	h.source.results["laptop"] = []*deals.Deal{deal("d1", "1")}

	_, err := h.store.DeleteWatch(context.Background(), &entity.DeleteWatchInput{OwnerID: 100, Query: "laptop"})
	require.NoError(t, err)

	notifications, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestRunCycleThrottlesManyQueries(t *testing.T) {
	h := newHarness(t)

	for i := range 5 {
		h.watch(t, int64(i+1), 100, fmt.Sprintf("q%d", i), nil)
	}

	_, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.sleeps, "five queries stay below the throttle threshold")

	h.watch(t, 6, 100, "q5", nil)

	_, err = h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, h.sleeps, 5)
	for _, d := range h.sleeps {
		assert.Equal(t, 1500*time.Millisecond, d)
	}
}

func TestRunCycleCancellationDiscardsMarks(t *testing.T) {
	h := newHarness(t)

	for i := range 6 {
		h.watch(t, int64(i+1), 100, fmt.Sprintf("q%d", i), nil)
		h.source.results[fmt.Sprintf("q%d", i)] = []*deals.Deal{deal(fmt.Sprintf("d%d", i), "1")}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	notifications, err := h.engine.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, notifications)
	assert.True(t, isAbort(err))

	seen, err := h.ledger.Seen(context.Background(), ledger.WatchKey(1, "d0"))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRunCycleStoreFailureAborts(t *testing.T) {
	h := newHarness(t)

	conf := config.Default().Alerts
	engine := NewEngine(failingQueries{Handle: h.store}, h.source, h.ledger, &conf, h.metrics, discardLogger())

	_, err := engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.False(t, isAbort(err))
	assert.Contains(t, err.Error(), "list watched queries")
}
