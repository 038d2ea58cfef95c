// Package digester fires recurring category jobs: it decides which jobs are due, fetches their
// category, and posts the deals a channel has not seen yet.
package digester

import (
	"context"
	"errors"
	"fmt"
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
	JobStore interface {
		GetJob(ctx context.Context, in *entity.GetJobInput) (*entity.GetJobOutput, error)
		ListActiveJobs(ctx context.Context, in *entity.ListActiveJobsInput) (*entity.ListActiveJobsOutput, error)
		UpdateJobLastRun(ctx context.Context, in *entity.UpdateJobLastRunInput) (*entity.UpdateJobLastRunOutput, error)
		IncrementJobStats(ctx context.Context, in *entity.IncrementJobStatsInput) (*entity.IncrementJobStatsOutput, error)
	}

	// Runner holds the steps of one job run. The steps are exposed separately so they can run
	// in-process or as workflow activities.
	Runner struct {
		store      JobStore
		source     deals.Source
		ledger     *ledger.Ledger
		sink       notify.Sink
		metrics    *metrics.Metrics
		logger     *slog.Logger
		location   *time.Location
		fetchLimit int
		now        func() time.Time
	}

	CollectOutput struct {
		// Found counts the listings that passed the job's filters, seen or not.
		Found int           `json:"found"`
		Deals []*deals.Deal `json:"deals"`
	}

	DeliverOutput struct {
		Delivered []string `json:"delivered"`
		Failed    int      `json:"failed"`
	}

	CommitInput struct {
		JobID     int64     `json:"job_id"`
		Delivered []string  `json:"delivered"`
		RanAt     time.Time `json:"ran_at"`
	}

	RecordStatsInput struct {
		JobID int64     `json:"job_id"`
		Found int       `json:"found"`
		Sent  int       `json:"sent"`
		RanAt time.Time `json:"ran_at"`
	}
)

// ErrNothingDelivered is returned by Run when every post to the sink failed.
var ErrNothingDelivered = errors.New("no digest item was delivered")

func NewRunner(
	store JobStore,
	source deals.Source,
	ledger *ledger.Ledger,
	sink notify.Sink,
	metrics *metrics.Metrics,
	logger *slog.Logger,
	location *time.Location,
	fetchLimit int,
) *Runner {
	if location == nil {
		location = time.UTC
	}
	return &Runner{
		store:      store,
		source:     source,
		ledger:     ledger,
		sink:       sink,
		metrics:    metrics,
		logger:     logger.With("component", "digester"),
		location:   location,
		fetchLimit: fetchLimit,
		now:        time.Now,
	}
}

// Collect fetches the job's category and returns the deals that pass its temperature and price
// filters and were never posted for this job.
func (r *Runner) Collect(ctx context.Context, job *entity.Job) (*CollectOutput, error) {
	found, err := r.source.ByCategory(ctx, &deals.ByCategoryInput{Slug: job.Slug, Limit: r.fetchLimit})
	if err != nil {
		return nil, fmt.Errorf("fetch category %s: %w", job.Slug, err)
	}

	listings := found.Deals
	if len(listings) > r.fetchLimit {
		listings = listings[:r.fetchLimit]
	}

	var (
		cycle = r.ledger.NewCycle()
		out   = &CollectOutput{}
	)

	for _, deal := range listings {
		if deal.Temperature < job.MinTemperature {
			continue
		}
		if job.MaxPrice != nil && price.Normalize(deal.Price) > *job.MaxPrice {
			continue
		}
		out.Found++

		key := ledger.JobKey(job.ID, deal.ID)
		seen, err := cycle.Seen(ctx, key)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}

		cycle.Stage(key)
		out.Deals = append(out.Deals, deal)
	}

	return out, nil
}

// Deliver posts every deal to the job's channel. A failed post is logged and counted; it is left
// out of the returned IDs so it is offered again on the next run.
func (r *Runner) Deliver(ctx context.Context, job *entity.Job, found []*deals.Deal) (*DeliverOutput, error) {
	out := &DeliverOutput{Delivered: make([]string, 0, len(found))}

	for _, deal := range found {
		err := r.sink.PostDigest(ctx, &notify.DigestItem{
			JobID:     job.ID,
			ChannelID: job.ChannelID,
			Deal:      deal,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out.Failed++
			r.metrics.DigestDeliveries.WithLabelValues("failed").Inc()
			r.metrics.SinkFailures.WithLabelValues("digest_item").Inc()
			r.logger.WarnContext(ctx, "failed to post digest item",
				slog.Int64("job_id", job.ID),
				slog.String("deal_id", deal.ID),
				slog.Any("error", err),
			)
			continue
		}

		r.metrics.DigestDeliveries.WithLabelValues("delivered").Inc()
		out.Delivered = append(out.Delivered, deal.ID)
	}

	if len(found) > 0 && len(out.Delivered) == 0 {
		return out, ErrNothingDelivered
	}

	return out, nil
}

// Commit records the delivered deals and the run time. Both writes are idempotent, so Commit may
// be repeated for the same run.
func (r *Runner) Commit(ctx context.Context, in *CommitInput) error {
	keys := make([]ledger.Key, 0, len(in.Delivered))
	for _, id := range in.Delivered {
		keys = append(keys, ledger.JobKey(in.JobID, id))
	}

	if err := r.ledger.MarkBatch(ctx, keys); err != nil {
		return err
	}

	if _, err := r.store.UpdateJobLastRun(ctx, &entity.UpdateJobLastRunInput{ID: in.JobID, LastRun: in.RanAt}); err != nil {
		return fmt.Errorf("update last run of job %d: %w", in.JobID, err)
	}

	return nil
}

// RecordStats adds one run to the day's statistics. The counters are additive; callers must not
// repeat it for the same run.
func (r *Runner) RecordStats(ctx context.Context, in *RecordStatsInput) error {
	if _, err := r.store.IncrementJobStats(ctx, &entity.IncrementJobStatsInput{
		JobID:      in.JobID,
		Date:       in.RanAt.In(r.location).Format(entity.StatsDateLayout),
		DealsFound: in.Found,
		DealsSent:  in.Sent,
	}); err != nil {
		return fmt.Errorf("increment stats of job %d: %w", in.JobID, err)
	}
	return nil
}

// RecordFailure counts a failed fetch in the day's statistics. last_run is left untouched so a
// later tick inside the same window may retry.
func (r *Runner) RecordFailure(ctx context.Context, jobID int64, at time.Time) error {
	if _, err := r.store.IncrementJobStats(ctx, &entity.IncrementJobStatsInput{
		JobID:        jobID,
		Date:         at.In(r.location).Format(entity.StatsDateLayout),
		ScrapeErrors: 1,
	}); err != nil {
		return fmt.Errorf("record failure of job %d: %w", jobID, err)
	}
	return nil
}

// Run executes all steps in-process.
func (r *Runner) Run(ctx context.Context, job *entity.Job) error {
	logger := r.logger.With(slog.Int64("job_id", job.ID), slog.String("slug", job.Slug))

	collected, err := r.Collect(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, deals.ErrSourceFailure) {
			r.metrics.SourceFailures.WithLabelValues("category").Inc()
			if recErr := r.RecordFailure(ctx, job.ID, r.now()); recErr != nil {
				logger.ErrorContext(ctx, "failed to record job failure", slog.Any("error", recErr))
			}
		}
		return err
	}

	delivered, err := r.Deliver(ctx, job, collected.Deals)
	if err != nil {
		return err
	}

	ranAt := r.now()

	if err = r.Commit(ctx, &CommitInput{
		JobID:     job.ID,
		Delivered: delivered.Delivered,
		RanAt:     ranAt,
	}); err != nil {
		return err
	}

	if err = r.RecordStats(ctx, &RecordStatsInput{
		JobID: job.ID,
		Found: collected.Found,
		Sent:  len(delivered.Delivered),
		RanAt: ranAt,
	}); err != nil {
		logger.ErrorContext(ctx, "failed to record job stats", slog.Any("error", err))
	}

	r.metrics.Notifications.WithLabelValues("digest_item").Add(float64(len(delivered.Delivered)))
	logger.InfoContext(ctx, "job run completed",
		slog.Int("found", collected.Found),
		slog.Int("new", len(collected.Deals)),
		slog.Int("delivered", len(delivered.Delivered)),
	)

	return nil
}

// Job loads an active job by ID. A job that was deleted or paused since it was found due yields
// nil without an error.
func (r *Runner) Job(ctx context.Context, id int64) (*entity.Job, error) {
	out, err := r.store.GetJob(ctx, &entity.GetJobInput{ID: id})
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load job %d: %w", id, err)
	}
	if out.Job.Status != entity.JobStatusActive {
		return nil, nil
	}
	return out.Job, nil
}
