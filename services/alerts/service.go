package alerts

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/cronx"
	"github.com/forbiddencoding/deal-notifier/common/ledger"
	"github.com/forbiddencoding/deal-notifier/common/metrics"
	"github.com/forbiddencoding/deal-notifier/common/notify"
	"github.com/google/uuid"
	"log/slog"
	"time"
)

const (
	alertJobName = "alert-cycle"
	purgeJobName = "ledger-purge"
)

// Service runs alert cycles on a fixed interval and purges old dedup records once a day.
type Service struct {
	loop      *cronx.Loop
	engine    *Engine
	sink      notify.Sink
	ledger    *ledger.Ledger
	metrics   *metrics.Metrics
	logger    *slog.Logger
	retention time.Duration
}

func NewService(
	engine *Engine,
	sink notify.Sink,
	ledger *ledger.Ledger,
	conf *config.Config,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) (*Service, error) {
	logger = logger.With("component", "alerts")

	s := &Service{
		loop:      cronx.New(logger, nil),
		engine:    engine,
		sink:      sink,
		ledger:    ledger,
		metrics:   metrics,
		logger:    logger,
		retention: conf.Ledger.Retention,
	}

	if err := s.loop.Add(alertJobName, fmt.Sprintf("@every %s", conf.Alerts.Interval), s.runCycle); err != nil {
		return nil, err
	}
	if err := s.loop.Add(purgeJobName, conf.Ledger.PurgeSchedule, s.purge); err != nil {
		return nil, err
	}

	return s, nil
}

// Start runs one cycle right away and then blocks until Close.
func (s *Service) Start() error {
	s.loop.Trigger(alertJobName)
	return s.loop.Start()
}

func (s *Service) Close() error {
	return s.loop.Close()
}

func (s *Service) runCycle(ctx context.Context) {
	logger := s.logger.With(slog.String("cycle_id", uuid.NewString()))
	start := time.Now()

	notifications, err := s.engine.RunCycle(ctx)
	s.metrics.AlertCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if isAbort(err) {
			s.metrics.AlertCycles.WithLabelValues("aborted").Inc()
			logger.InfoContext(ctx, "alert cycle aborted", slog.Any("error", err))
			return
		}
		s.metrics.AlertCycles.WithLabelValues("failed").Inc()
		logger.ErrorContext(ctx, "alert cycle failed", slog.Any("error", err))
		return
	}

	var delivered int
	for _, n := range notifications {
		if err = s.sink.NotifyUser(ctx, n); err != nil {
			s.metrics.SinkFailures.WithLabelValues("user_alert").Inc()
			logger.WarnContext(ctx, "failed to deliver alert",
				slog.Int64("recipient_id", n.RecipientID),
				slog.String("deal_id", n.Deal.ID),
				slog.Any("error", err),
			)
			continue
		}
		delivered++
	}

	s.metrics.AlertCycles.WithLabelValues("completed").Inc()
	s.metrics.Notifications.WithLabelValues("user_alert").Add(float64(delivered))

	logger.InfoContext(ctx, "alert cycle completed",
		slog.Int("notifications", len(notifications)),
		slog.Int("delivered", delivered),
		slog.Duration("took", time.Since(start)),
	)
}

func (s *Service) purge(ctx context.Context) {
	purged, err := s.ledger.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger purge failed", slog.Any("error", err))
		return
	}

	s.metrics.SeenDealsPurged.Add(float64(purged))
	s.logger.InfoContext(ctx, "ledger purge completed", slog.Int64("purged", purged), slog.Duration("retention", s.retention))
}
