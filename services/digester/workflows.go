package digester

import (
	"errors"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"time"
)

const DigestWorkflowName = "category_digest"

type (
	DigestWorkflowInput struct {
		JobID      int64     `json:"job_id"`
		Occurrence time.Time `json:"occurrence"`
	}

	DigestWorkflowOutput struct {
		Found     int `json:"found"`
		Delivered int `json:"delivered"`
	}
)

func DigestWorkflow(ctx workflow.Context, in *DigestWorkflowInput) (*DigestWorkflowOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("DigestWorkflow started", "job_id", in.JobID, "occurrence", in.Occurrence)

	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var collected CollectActivityOutput
	if err := workflow.ExecuteActivity(fetchCtx, CollectActivityName, &CollectActivityInput{
		JobID: in.JobID,
	}).Get(ctx, &collected); err != nil {
		logger.Error("Failed to collect category", "error", err, "job_id", in.JobID)

		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == sourceFailureErrorType {
			if recErr := workflow.ExecuteActivity(statsCtx(ctx), RecordFailureActivityName, &RecordFailureActivityInput{
				JobID: in.JobID,
			}).Get(ctx, nil); recErr != nil {
				logger.Error("Failed to record failure", "error", recErr, "job_id", in.JobID)
			}
		}
		return nil, err
	}

	if collected.Skipped {
		return &DigestWorkflowOutput{}, nil
	}

	deliverCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var delivered DeliverOutput
	if err := workflow.ExecuteActivity(deliverCtx, DeliverActivityName, &DeliverActivityInput{
		Job:   collected.Job,
		Deals: collected.Result.Deals,
	}).Get(ctx, &delivered); err != nil {
		logger.Error("Failed to deliver digest", "error", err, "job_id", in.JobID)
		return nil, err
	}

	ranAt := workflow.Now(ctx)

	if err := workflow.ExecuteActivity(storeCtx(ctx), CommitActivityName, &CommitInput{
		JobID:     in.JobID,
		Delivered: delivered.Delivered,
		RanAt:     ranAt,
	}).Get(ctx, nil); err != nil {
		logger.Error("Failed to commit digest", "error", err, "job_id", in.JobID)
		return nil, err
	}

	if err := workflow.ExecuteActivity(statsCtx(ctx), RecordStatsActivityName, &RecordStatsInput{
		JobID: in.JobID,
		Found: collected.Result.Found,
		Sent:  len(delivered.Delivered),
		RanAt: ranAt,
	}).Get(ctx, nil); err != nil {
		logger.Error("Failed to record digest stats", "error", err, "job_id", in.JobID)
	}

	return &DigestWorkflowOutput{
		Found:     collected.Result.Found,
		Delivered: len(delivered.Delivered),
	}, nil
}

func storeCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
}

// statsCtx runs additive counter writes at most once; a retry after a lost response would count
// the run twice.
func statsCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}
