package digester

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"log/slog"
	"time"
)

const occurrenceLayout = "200601021504"

type (
	// Dispatcher starts the run of one job occurrence.
	Dispatcher interface {
		Dispatch(ctx context.Context, job *entity.Job, occurrence time.Time) error
	}

	// occurrenceGuard is implemented by dispatchers that refuse a second start of a running or
	// completed occurrence and accept a restart of a failed one.
	occurrenceGuard interface {
		GuardsOccurrence() bool
	}

	InlineDispatcher struct {
		runner *Runner
	}

	TemporalDispatcher struct {
		client    client.Client
		taskQueue string
		logger    *slog.Logger
	}
)

var (
	_ Dispatcher = (*InlineDispatcher)(nil)
	_ Dispatcher = (*TemporalDispatcher)(nil)

	_ occurrenceGuard = (*TemporalDispatcher)(nil)
)

// WorkflowID names the workflow of one job occurrence. The server rejects a second start of an
// occurrence that is running or completed; only a failed occurrence may be started again.
func WorkflowID(jobID int64, occurrence time.Time) string {
	return fmt.Sprintf("category_digest::%d::%s", jobID, occurrence.UTC().Format(occurrenceLayout))
}

func NewInlineDispatcher(runner *Runner) *InlineDispatcher {
	return &InlineDispatcher{runner: runner}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, job *entity.Job, _ time.Time) error {
	return d.runner.Run(ctx, job)
}

func NewTemporalDispatcher(client client.Client, taskQueue string, logger *slog.Logger) *TemporalDispatcher {
	return &TemporalDispatcher{
		client:    client,
		taskQueue: taskQueue,
		logger:    logger.With("component", "digester"),
	}
}

// GuardsOccurrence reports true: the workflow ID reuse policy deduplicates fires across replicas.
func (d *TemporalDispatcher) GuardsOccurrence() bool {
	return true
}

func (d *TemporalDispatcher) Dispatch(ctx context.Context, job *entity.Job, occurrence time.Time) error {
	id := WorkflowID(job.ID, occurrence)

	run, err := d.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                d.taskQueue,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowIDConflictPolicy:                 enums.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		WorkflowExecutionTimeout:                 30 * time.Minute,
	}, DigestWorkflowName, &DigestWorkflowInput{
		JobID:      job.ID,
		Occurrence: occurrence,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			d.logger.InfoContext(ctx, "occurrence already dispatched", slog.String("workflow_id", id))
			return nil
		}
		return fmt.Errorf("start workflow %s: %w", id, err)
	}

	d.logger.InfoContext(ctx, "dispatched job",
		slog.String("workflow_id", run.GetID()),
		slog.String("run_id", run.GetRunID()),
	)
	return nil
}
