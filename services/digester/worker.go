package digester

import (
	"context"
	"github.com/forbiddencoding/deal-notifier/common/temporalx"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

type Worker struct {
	worker worker.Worker
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(client client.Client, taskQueue string, runner *Runner) *Worker {
	w := worker.New(client, taskQueue, worker.Options{})
	worker.EnableVerboseLogging(false)

	Register(w, NewActivities(runner))

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		worker: w,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds the digest workflow and its activities to r.
func Register(r worker.Registry, activities *Activities) {
	r.RegisterWorkflowWithOptions(DigestWorkflow, workflow.RegisterOptions{Name: DigestWorkflowName})
	r.RegisterActivityWithOptions(activities.Collect, activity.RegisterOptions{Name: CollectActivityName})
	r.RegisterActivityWithOptions(activities.Deliver, activity.RegisterOptions{Name: DeliverActivityName})
	r.RegisterActivityWithOptions(activities.Commit, activity.RegisterOptions{Name: CommitActivityName})
	r.RegisterActivityWithOptions(activities.RecordStats, activity.RegisterOptions{Name: RecordStatsActivityName})
	r.RegisterActivityWithOptions(activities.RecordFailure, activity.RegisterOptions{Name: RecordFailureActivityName})
}

func (w *Worker) Start() error {
	return w.worker.Run(temporalx.InterruptOn(w.ctx))
}

func (w *Worker) Close() error {
	w.cancel()
	return nil
}
