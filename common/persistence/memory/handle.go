// Package memory is a process-local persistence driver. It keeps everything in maps guarded by a
// single mutex and is meant for development and tests.
package memory

import (
	"cmp"
	"context"
	"errors"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type (
	jobKey struct {
		guildID int64
		slug    string
	}

	watchKey struct {
		ownerID int64
		query   string
	}

	statsKey struct {
		jobID int64
		date  string
	}

	Handle struct {
		running atomic.Bool
		mu      sync.RWMutex
		now     func() time.Time

		watches map[watchKey]*entity.Watch
		jobs    map[jobKey]*entity.Job
		seen    map[entity.SeenDeal]time.Time
		stats   map[statsKey]*entity.JobStats
	}
)

var errClosed = errors.New("no usable database connection found")

func NewHandle() *Handle {
	h := &Handle{
		now:     time.Now,
		watches: make(map[watchKey]*entity.Watch),
		jobs:    make(map[jobKey]*entity.Job),
		seen:    make(map[entity.SeenDeal]time.Time),
		stats:   make(map[statsKey]*entity.JobStats),
	}
	h.running.Store(true)
	return h
}

// SetClock replaces the clock used for created_at and seen_at stamps.
func (h *Handle) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

func (h *Handle) Close(ctx context.Context) error {
	h.running.Store(false)
	return nil
}

func (h *Handle) Migrate(ctx context.Context) error {
	return h.check()
}

func (h *Handle) check() error {
	if !h.running.Load() {
		return errClosed
	}
	return nil
}

func (h *Handle) UpsertWatch(ctx context.Context, in *entity.UpsertWatchInput) (*entity.UpsertWatchOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := watchKey{ownerID: in.OwnerID, query: in.Query}

	if w, ok := h.watches[key]; ok {
		w.MaxPrice = copyFloat(in.MaxPrice)
		return &entity.UpsertWatchOutput{Watch: copyWatch(w), Created: false}, nil
	}

	w := &entity.Watch{
		ID:        in.ID,
		OwnerID:   in.OwnerID,
		Query:     in.Query,
		MaxPrice:  copyFloat(in.MaxPrice),
		CreatedAt: h.now().UTC(),
	}
	h.watches[key] = w

	return &entity.UpsertWatchOutput{Watch: copyWatch(w), Created: true}, nil
}

func (h *Handle) DeleteWatch(ctx context.Context, in *entity.DeleteWatchInput) (*entity.DeleteWatchOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := watchKey{ownerID: in.OwnerID, query: in.Query}

	w, ok := h.watches[key]
	if !ok {
		return nil, entity.ErrNotFound
	}
	delete(h.watches, key)

	for sd := range h.seen {
		if sd.Scope == entity.ScopeWatch && sd.ScopeID == w.ID {
			delete(h.seen, sd)
		}
	}

	return &entity.DeleteWatchOutput{}, nil
}

func (h *Handle) ListWatches(ctx context.Context, in *entity.ListWatchesInput) (*entity.ListWatchesOutput, error) {
	watches, err := h.listWatches(func(w *entity.Watch) bool { return w.OwnerID == in.OwnerID })
	if err != nil {
		return nil, err
	}
	return &entity.ListWatchesOutput{Watches: watches}, nil
}

func (h *Handle) ListWatchesByQuery(ctx context.Context, in *entity.ListWatchesByQueryInput) (*entity.ListWatchesByQueryOutput, error) {
	watches, err := h.listWatches(func(w *entity.Watch) bool { return w.Query == in.Query })
	if err != nil {
		return nil, err
	}
	return &entity.ListWatchesByQueryOutput{Watches: watches}, nil
}

func (h *Handle) listWatches(match func(*entity.Watch) bool) ([]*entity.Watch, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	watches := make([]*entity.Watch, 0)
	for _, w := range h.watches {
		if match(w) {
			watches = append(watches, copyWatch(w))
		}
	}
	slices.SortFunc(watches, func(a, b *entity.Watch) int { return cmp.Compare(a.ID, b.ID) })

	return watches, nil
}

func (h *Handle) ListDistinctQueries(ctx context.Context, in *entity.ListDistinctQueriesInput) (*entity.ListDistinctQueriesOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	set := make(map[string]struct{})
	for _, w := range h.watches {
		set[w.Query] = struct{}{}
	}

	queries := make([]string, 0, len(set))
	for q := range set {
		queries = append(queries, q)
	}
	slices.Sort(queries)

	return &entity.ListDistinctQueriesOutput{Queries: queries}, nil
}

func (h *Handle) CreateJob(ctx context.Context, in *entity.CreateJobInput) (*entity.CreateJobOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := jobKey{guildID: in.Job.GuildID, slug: in.Job.Slug}
	if _, ok := h.jobs[key]; ok {
		return nil, entity.ErrAlreadyExists
	}

	job := copyJob(in.Job)
	if job.Status == "" {
		job.Status = entity.JobStatusActive
	}
	job.CreatedAt = h.now().UTC()
	h.jobs[key] = job

	return &entity.CreateJobOutput{}, nil
}

func (h *Handle) GetJob(ctx context.Context, in *entity.GetJobInput) (*entity.GetJobOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	job, ok := h.findJob(in.ID, in.GuildID, in.Slug)
	if !ok {
		return nil, entity.ErrNotFound
	}

	return &entity.GetJobOutput{Job: copyJob(job)}, nil
}

func (h *Handle) findJob(id, guildID int64, slug string) (*entity.Job, bool) {
	if id == 0 {
		job, ok := h.jobs[jobKey{guildID: guildID, slug: slug}]
		return job, ok
	}
	for _, job := range h.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

func (h *Handle) ListJobs(ctx context.Context, in *entity.ListJobsInput) (*entity.ListJobsOutput, error) {
	jobs, err := h.listJobs(func(j *entity.Job) bool {
		return j.GuildID == in.GuildID && (in.Status == nil || j.Status == *in.Status)
	})
	if err != nil {
		return nil, err
	}
	return &entity.ListJobsOutput{Jobs: jobs}, nil
}

func (h *Handle) ListActiveJobs(ctx context.Context, in *entity.ListActiveJobsInput) (*entity.ListActiveJobsOutput, error) {
	jobs, err := h.listJobs(func(j *entity.Job) bool { return j.Status == entity.JobStatusActive })
	if err != nil {
		return nil, err
	}
	return &entity.ListActiveJobsOutput{Jobs: jobs}, nil
}

func (h *Handle) listJobs(match func(*entity.Job) bool) ([]*entity.Job, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	jobs := make([]*entity.Job, 0)
	for _, j := range h.jobs {
		if match(j) {
			jobs = append(jobs, copyJob(j))
		}
	}
	slices.SortFunc(jobs, func(a, b *entity.Job) int { return cmp.Compare(a.ID, b.ID) })

	return jobs, nil
}

func (h *Handle) UpdateJobStatus(ctx context.Context, in *entity.UpdateJobStatusInput) (*entity.UpdateJobStatusOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	job, ok := h.jobs[jobKey{guildID: in.GuildID, slug: in.Slug}]
	if !ok {
		return nil, entity.ErrNotFound
	}
	job.Status = in.Status

	return &entity.UpdateJobStatusOutput{}, nil
}

func (h *Handle) UpdateJobLastRun(ctx context.Context, in *entity.UpdateJobLastRunInput) (*entity.UpdateJobLastRunOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	job, ok := h.findJob(in.ID, 0, "")
	if !ok {
		return nil, entity.ErrNotFound
	}
	lastRun := in.LastRun
	job.LastRun = &lastRun

	return &entity.UpdateJobLastRunOutput{}, nil
}

func (h *Handle) DeleteJob(ctx context.Context, in *entity.DeleteJobInput) (*entity.DeleteJobOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := jobKey{guildID: in.GuildID, slug: in.Slug}
	job, ok := h.jobs[key]
	if !ok {
		return nil, entity.ErrNotFound
	}
	delete(h.jobs, key)

	for sd := range h.seen {
		if sd.Scope == entity.ScopeJob && sd.ScopeID == job.ID {
			delete(h.seen, sd)
		}
	}
	for k := range h.stats {
		if k.jobID == job.ID {
			delete(h.stats, k)
		}
	}

	return &entity.DeleteJobOutput{}, nil
}

func (h *Handle) IsDealSeen(ctx context.Context, in *entity.IsDealSeenInput) (*entity.IsDealSeenOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.seen[*in.Deal]
	return &entity.IsDealSeenOutput{Seen: ok}, nil
}

func (h *Handle) MarkDealsSeen(ctx context.Context, in *entity.MarkDealsSeenInput) (*entity.MarkDealsSeenOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now().UTC()
	for _, sd := range in.Deals {
		if _, ok := h.seen[*sd]; !ok {
			h.seen[*sd] = now
		}
	}

	return &entity.MarkDealsSeenOutput{}, nil
}

func (h *Handle) PurgeSeenDeals(ctx context.Context, in *entity.PurgeSeenDealsInput) (*entity.PurgeSeenDealsOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var purged int64
	for sd, seenAt := range h.seen {
		if seenAt.Before(in.Before) {
			delete(h.seen, sd)
			purged++
		}
	}

	return &entity.PurgeSeenDealsOutput{Purged: purged}, nil
}

func (h *Handle) IncrementJobStats(ctx context.Context, in *entity.IncrementJobStatsInput) (*entity.IncrementJobStatsOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := statsKey{jobID: in.JobID, date: in.Date}
	s, ok := h.stats[key]
	if !ok {
		s = &entity.JobStats{JobID: in.JobID, Date: in.Date}
		h.stats[key] = s
	}
	s.DealsFound += in.DealsFound
	s.DealsSent += in.DealsSent
	s.ScrapeErrors += in.ScrapeErrors

	return &entity.IncrementJobStatsOutput{}, nil
}

func (h *Handle) ListJobStats(ctx context.Context, in *entity.ListJobStatsInput) (*entity.ListJobStatsOutput, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make([]*entity.JobStats, 0)
	for k, s := range h.stats {
		if k.jobID == in.JobID && k.date >= in.Since {
			c := *s
			stats = append(stats, &c)
		}
	}
	slices.SortFunc(stats, func(a, b *entity.JobStats) int { return cmp.Compare(b.Date, a.Date) })

	return &entity.ListJobStatsOutput{Stats: stats}, nil
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyWatch(w *entity.Watch) *entity.Watch {
	c := *w
	c.MaxPrice = copyFloat(w.MaxPrice)
	return &c
}

func copyJob(j *entity.Job) *entity.Job {
	c := *j
	c.MaxPrice = copyFloat(j.MaxPrice)
	if j.LastRun != nil {
		lastRun := *j.LastRun
		c.LastRun = &lastRun
	}
	if j.Schedule.Day != nil {
		day := *j.Schedule.Day
		c.Schedule.Day = &day
	}
	if j.Schedule.Date != nil {
		date := *j.Schedule.Date
		c.Schedule.Date = &date
	}
	return &c
}
