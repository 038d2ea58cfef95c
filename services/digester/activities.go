package digester

import (
	"context"
	"errors"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

const (
	CollectActivityName       = "collect_category"
	DeliverActivityName       = "deliver_digest"
	CommitActivityName        = "commit_digest"
	RecordStatsActivityName   = "record_digest_stats"
	RecordFailureActivityName = "record_failure"

	sourceFailureErrorType = "source_failure"
)

type Activities struct {
	runner *Runner
}

func NewActivities(runner *Runner) *Activities {
	return &Activities{runner: runner}
}

type (
	CollectActivityInput struct {
		JobID int64 `json:"job_id"`
	}

	CollectActivityOutput struct {
		Job     *entity.Job    `json:"job,omitempty"`
		Skipped bool           `json:"skipped,omitempty"`
		Result  *CollectOutput `json:"result,omitempty"`
	}
)

func (a *Activities) Collect(ctx context.Context, in *CollectActivityInput) (*CollectActivityOutput, error) {
	logger := activity.GetLogger(ctx)

	job, err := a.runner.Job(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		logger.Info("job is gone or paused, skipping", "job_id", in.JobID)
		return &CollectActivityOutput{Skipped: true}, nil
	}

	result, err := a.runner.Collect(ctx, job)
	if err != nil {
		if errors.Is(err, deals.ErrSourceFailure) {
			a.runner.metrics.SourceFailures.WithLabelValues("category").Inc()
			return nil, temporal.NewApplicationErrorWithOptions("category fetch failed", sourceFailureErrorType, temporal.ApplicationErrorOptions{
				Cause:        err,
				NonRetryable: false,
			})
		}
		return nil, err
	}

	return &CollectActivityOutput{Job: job, Result: result}, nil
}

type DeliverActivityInput struct {
	Job   *entity.Job   `json:"job"`
	Deals []*deals.Deal `json:"deals"`
}

func (a *Activities) Deliver(ctx context.Context, in *DeliverActivityInput) (*DeliverOutput, error) {
	return a.runner.Deliver(ctx, in.Job, in.Deals)
}

func (a *Activities) Commit(ctx context.Context, in *CommitInput) error {
	return a.runner.Commit(ctx, in)
}

func (a *Activities) RecordStats(ctx context.Context, in *RecordStatsInput) error {
	a.runner.metrics.Notifications.WithLabelValues("digest_item").Add(float64(in.Sent))
	return a.runner.RecordStats(ctx, in)
}

type RecordFailureActivityInput struct {
	JobID int64 `json:"job_id"`
}

func (a *Activities) RecordFailure(ctx context.Context, in *RecordFailureActivityInput) error {
	return a.runner.RecordFailure(ctx, in.JobID, a.runner.now())
}
