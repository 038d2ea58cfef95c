package digester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatch struct {
	jobID      int64
	occurrence time.Time
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatch
	err   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, job *entity.Job, occurrence time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, dispatch{jobID: job.ID, occurrence: occurrence})
	return d.err
}

// guardingDispatcher starts runs that may still fail after Dispatch returned.
type guardingDispatcher struct {
	fakeDispatcher
}

func (d *guardingDispatcher) GuardsOccurrence() bool {
	return true
}

type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *memoryLocker) AcquireLock(_ context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return false, nil
	}
	l.held[name] = true
	return true, nil
}

func (l *memoryLocker) ReleaseLock(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, name)
	l.released = append(l.released, name)
	return nil
}

func newTestEvaluator(t *testing.T) *schedule.Evaluator {
	t.Helper()

	conf := config.Default().Digest
	e, err := NewEvaluator(&conf)
	require.NoError(t, err)
	return e
}

func TestNewEvaluatorUsesConfig(t *testing.T) {
	conf := config.Default().Digest
	conf.DriftTolerance = 5 * time.Minute
	conf.BiweeklyMinDays = 10

	e, err := NewEvaluator(&conf)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, e.DriftTolerance)
	assert.Equal(t, 30*time.Minute, e.Debounce)
	assert.Equal(t, 10, e.BiweeklyMinDays)
	assert.Equal(t, "Europe/Warsaw", e.Location.String())

	conf.Timezone = "Mars/Olympus"
	_, err = NewEvaluator(&conf)
	require.Error(t, err)
}

func TestTickDispatchesDueJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	monday := time.Monday
	f.job(t, &entity.Job{ID: 1, Slug: "daily"})
	f.job(t, &entity.Job{ID: 2, Slug: "later", Schedule: schedule.Schedule{Frequency: schedule.Daily, Time: "18:00"}})
	f.job(t, &entity.Job{ID: 3, Slug: "weekly", Schedule: schedule.Schedule{Frequency: schedule.Weekly, Time: "09:00", Day: &monday}})
	f.job(t, &entity.Job{ID: 4, Slug: "paused", Status: entity.JobStatusPaused})

	dispatcher := &fakeDispatcher{}
	s := NewScheduler(f.store, newTestEvaluator(t), dispatcher, nil, f.metrics, discardLogger())

	// 2026-03-02 is a Monday.
	out, err := s.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Due)
	assert.Equal(t, 2, out.Dispatched)

	want := time.Date(2026, time.March, 2, 9, 0, 0, 0, warsaw)
	require.Len(t, dispatcher.calls, 2)
	for _, c := range dispatcher.calls {
		assert.Contains(t, []int64{1, 3}, c.jobID)
		assert.True(t, c.occurrence.Equal(want))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.DueJobs))
}

func TestTickHonoursFireLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.job(t, &entity.Job{ID: 1, Slug: "daily"})

	locker := &memoryLocker{held: make(map[string]bool)}
	first := &fakeDispatcher{}
	second := &fakeDispatcher{}

	out, err := NewScheduler(f.store, newTestEvaluator(t), first, locker, f.metrics, discardLogger()).Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Dispatched)

	out, err = NewScheduler(f.store, newTestEvaluator(t), second, locker, f.metrics, discardLogger()).Tick(ctx, f.now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Locked)
	assert.Empty(t, second.calls)
}

func TestTickReleasesLockOnDispatchFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.job(t, &entity.Job{ID: 1, Slug: "daily"})

	locker := &memoryLocker{held: make(map[string]bool)}
	dispatcher := &fakeDispatcher{err: errors.New("bridge down")}
	s := NewScheduler(f.store, newTestEvaluator(t), dispatcher, locker, f.metrics, discardLogger())

	out, err := s.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, []string{lockName(1, time.Date(2026, time.March, 2, 9, 0, 0, 0, warsaw))}, locker.released)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchErrors))

	dispatcher.err = nil
	out, err = s.Tick(ctx, f.now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Dispatched)
}

func TestTickRetriesFailedOccurrenceWithGuardingDispatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.job(t, &entity.Job{ID: 1, Slug: "daily"})

	locker := &memoryLocker{held: make(map[string]bool)}
	dispatcher := &guardingDispatcher{}
	s := NewScheduler(f.store, newTestEvaluator(t), dispatcher, locker, f.metrics, discardLogger())

	out, err := s.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Dispatched)

	// The started run failed, so last_run is still unset and the next tick must fire again.
	out, err = s.Tick(ctx, f.now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Due)
	assert.Equal(t, 1, out.Dispatched)
	assert.Zero(t, out.Locked)

	assert.Len(t, dispatcher.calls, 2)
	assert.Empty(t, locker.held)
}

func TestNewSchedulerDropsLockForTemporalDispatch(t *testing.T) {
	f := newFixture(t)
	locker := &memoryLocker{held: make(map[string]bool)}

	s := NewScheduler(f.store, newTestEvaluator(t), NewTemporalDispatcher(nil, "digest", discardLogger()), locker, f.metrics, discardLogger())
	assert.Nil(t, s.locker)

	s = NewScheduler(f.store, newTestEvaluator(t), NewInlineDispatcher(f.runner), locker, f.metrics, discardLogger())
	assert.NotNil(t, s.locker)
}

func TestTickWithInlineDispatchDebounces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.job(t, &entity.Job{ID: 1, Slug: "daily"})
	f.source.deals["daily"] = []*deals.Deal{listing("d1", 10, "1")}

	s := NewScheduler(f.store, newTestEvaluator(t), NewInlineDispatcher(f.runner), nil, f.metrics, discardLogger())

	out, err := s.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Dispatched)

	out, err = s.Tick(ctx, f.now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Due, "the job already ran for this occurrence")

	assert.Equal(t, []string{"d1"}, f.sink.posted())
	assert.Equal(t, 1, f.source.calls)
}

func TestWorkflowID(t *testing.T) {
	occurrence := time.Date(2026, time.March, 2, 9, 0, 0, 0, warsaw)
	assert.Equal(t, "category_digest::42::202603020800", WorkflowID(42, occurrence))
}
