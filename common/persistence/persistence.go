package persistence

import (
	"context"
	"errors"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/persistence/libsql"
	"github.com/forbiddencoding/deal-notifier/common/persistence/memory"
	"github.com/forbiddencoding/deal-notifier/common/persistence/mysql"
	"github.com/forbiddencoding/deal-notifier/common/persistence/postgres"
	"github.com/forbiddencoding/deal-notifier/common/persistence/sqlite"
)

type Persistence interface {
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error

	UpsertWatch(ctx context.Context, in *entity.UpsertWatchInput) (*entity.UpsertWatchOutput, error)
	DeleteWatch(ctx context.Context, in *entity.DeleteWatchInput) (*entity.DeleteWatchOutput, error)
	ListWatches(ctx context.Context, in *entity.ListWatchesInput) (*entity.ListWatchesOutput, error)
	ListDistinctQueries(ctx context.Context, in *entity.ListDistinctQueriesInput) (*entity.ListDistinctQueriesOutput, error)
	ListWatchesByQuery(ctx context.Context, in *entity.ListWatchesByQueryInput) (*entity.ListWatchesByQueryOutput, error)

	CreateJob(ctx context.Context, in *entity.CreateJobInput) (*entity.CreateJobOutput, error)
	GetJob(ctx context.Context, in *entity.GetJobInput) (*entity.GetJobOutput, error)
	ListJobs(ctx context.Context, in *entity.ListJobsInput) (*entity.ListJobsOutput, error)
	ListActiveJobs(ctx context.Context, in *entity.ListActiveJobsInput) (*entity.ListActiveJobsOutput, error)
	UpdateJobStatus(ctx context.Context, in *entity.UpdateJobStatusInput) (*entity.UpdateJobStatusOutput, error)
	UpdateJobLastRun(ctx context.Context, in *entity.UpdateJobLastRunInput) (*entity.UpdateJobLastRunOutput, error)
	DeleteJob(ctx context.Context, in *entity.DeleteJobInput) (*entity.DeleteJobOutput, error)

	IsDealSeen(ctx context.Context, in *entity.IsDealSeenInput) (*entity.IsDealSeenOutput, error)
	MarkDealsSeen(ctx context.Context, in *entity.MarkDealsSeenInput) (*entity.MarkDealsSeenOutput, error)
	PurgeSeenDeals(ctx context.Context, in *entity.PurgeSeenDealsInput) (*entity.PurgeSeenDealsOutput, error)

	IncrementJobStats(ctx context.Context, in *entity.IncrementJobStatsInput) (*entity.IncrementJobStatsOutput, error)
	ListJobStats(ctx context.Context, in *entity.ListJobStatsInput) (*entity.ListJobStatsOutput, error)
}

var (
	ErrUnsupportedPersistenceDriver = errors.New("unsupported persistence driver")

	ErrAlreadyExists = entity.ErrAlreadyExists
	ErrNotFound      = entity.ErrNotFound
)

func New(ctx context.Context, config *config.Persistence) (Persistence, error) {
	var (
		handle Persistence
		err    error
	)

	switch config.Driver {
	case "postgres":
		handle, err = postgres.NewHandle(ctx, config)
	case "mysql":
		handle, err = mysql.NewHandle(ctx, config)
	case "sqlite":
		handle, err = sqlite.NewHandle(ctx, config)
	case "libsql":
		handle, err = libsql.NewHandle(ctx, config)
	case "memory":
		handle = memory.NewHandle()
	default:
		return nil, ErrUnsupportedPersistenceDriver
	}
	if err != nil {
		return nil, err
	}

	if config.Migrate {
		if err = handle.Migrate(ctx); err != nil {
			_ = handle.Close(ctx)
			return nil, err
		}
	}

	return handle, nil
}
