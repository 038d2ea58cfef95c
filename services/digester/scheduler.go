package digester

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/cronx"
	"github.com/forbiddencoding/deal-notifier/common/metrics"
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"github.com/google/uuid"
	"log/slog"
	"time"
)

const tickJobName = "digest-tick"

type (
	// Locker guards one occurrence across replicas. Implementations must make AcquireLock atomic.
	Locker interface {
		AcquireLock(ctx context.Context, name string) (bool, error)
		ReleaseLock(ctx context.Context, name string) error
	}

	Scheduler struct {
		store      JobStore
		evaluator  *schedule.Evaluator
		dispatcher Dispatcher
		locker     Locker
		metrics    *metrics.Metrics
		logger     *slog.Logger
	}

	TickOutput struct {
		Due        int `json:"due"`
		Dispatched int `json:"dispatched"`
		Locked     int `json:"locked"`
		Failed     int `json:"failed"`
	}
)

// NewScheduler builds a scheduler. locker may be nil on a single replica. It is ignored for
// dispatchers that guard occurrences themselves, since the lock would outlive a failed run that
// finishes after Dispatch returned and block its retry inside the drift window.
func NewScheduler(
	store JobStore,
	evaluator *schedule.Evaluator,
	dispatcher Dispatcher,
	locker Locker,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *Scheduler {
	if g, ok := dispatcher.(occurrenceGuard); ok && g.GuardsOccurrence() {
		locker = nil
	}

	return &Scheduler{
		store:      store,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		locker:     locker,
		metrics:    metrics,
		logger:     logger.With("component", "digester"),
	}
}

func NewEvaluator(conf *config.Digest) (*schedule.Evaluator, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", conf.Timezone, err)
	}

	e := schedule.NewEvaluator(loc)
	e.DriftTolerance = conf.DriftTolerance
	e.Debounce = conf.Debounce
	e.BiweeklyMinDays = conf.BiweeklyMinDays

	return e, nil
}

func lockName(jobID int64, occurrence time.Time) string {
	return fmt.Sprintf("job:%d:%s", jobID, occurrence.UTC().Format(occurrenceLayout))
}

// Tick dispatches every active job that is due at now. Jobs are dispatched one after another.
// Failing to list jobs aborts the tick; a failed dispatch only affects its own job.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (*TickOutput, error) {
	active, err := s.store.ListActiveJobs(ctx, &entity.ListActiveJobsInput{})
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}

	out := &TickOutput{}

	for _, job := range active.Jobs {
		if !s.evaluator.IsDue(job.Target(), now) {
			continue
		}

		occurrence, ok := s.evaluator.Occurrence(job.Schedule, now)
		if !ok {
			continue
		}

		out.Due++
		s.metrics.DueJobs.Inc()

		logger := s.logger.With(
			slog.Int64("job_id", job.ID),
			slog.String("slug", job.Slug),
			slog.Time("occurrence", occurrence),
		)

		name := lockName(job.ID, occurrence)
		if s.locker != nil {
			acquired, err := s.locker.AcquireLock(ctx, name)
			if err != nil {
				logger.WarnContext(ctx, "fire lock unavailable, dispatching without it", slog.Any("error", err))
			} else if !acquired {
				out.Locked++
				logger.DebugContext(ctx, "occurrence fired by another replica")
				continue
			}
		}

		if err = s.dispatcher.Dispatch(ctx, job, occurrence); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}

			out.Failed++
			s.metrics.DispatchErrors.Inc()
			logger.ErrorContext(ctx, "failed to dispatch job", slog.Any("error", err))

			if s.locker != nil {
				if err = s.locker.ReleaseLock(ctx, name); err != nil {
					logger.WarnContext(ctx, "failed to release fire lock", slog.Any("error", err))
				}
			}
			continue
		}

		out.Dispatched++
	}

	return out, nil
}

// Service evaluates the schedules once a minute.
type Service struct {
	loop      *cronx.Loop
	scheduler *Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(scheduler *Scheduler, logger *slog.Logger) (*Service, error) {
	logger = logger.With("component", "digester")

	s := &Service{
		loop:      cronx.New(logger, scheduler.evaluator.Location),
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}

	if err := s.loop.Add(tickJobName, "* * * * *", s.tick); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) Start() error {
	return s.loop.Start()
}

func (s *Service) Close() error {
	return s.loop.Close()
}

func (s *Service) tick(ctx context.Context) {
	logger := s.logger.With(slog.String("tick_id", uuid.NewString()))

	out, err := s.scheduler.Tick(ctx, s.now())
	if err != nil {
		logger.ErrorContext(ctx, "digest tick failed", slog.Any("error", err))
		return
	}

	if out.Due > 0 {
		logger.InfoContext(ctx, "digest tick completed",
			slog.Int("due", out.Due),
			slog.Int("dispatched", out.Dispatched),
			slog.Int("locked", out.Locked),
			slog.Int("failed", out.Failed),
		)
	}
}
