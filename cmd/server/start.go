package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/cache"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/ledger"
	"github.com/forbiddencoding/deal-notifier/common/metrics"
	"github.com/forbiddencoding/deal-notifier/common/notify"
	"github.com/forbiddencoding/deal-notifier/common/persistence"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"github.com/forbiddencoding/deal-notifier/common/server"
	"github.com/forbiddencoding/deal-notifier/common/temporalx"
	"github.com/forbiddencoding/deal-notifier/services/alerts"
	"github.com/forbiddencoding/deal-notifier/services/app"
	"github.com/forbiddencoding/deal-notifier/services/app/api"
	"github.com/forbiddencoding/deal-notifier/services/digester"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.temporal.io/sdk/client"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"
)

const (
	ServiceApp    = "app"
	ServiceAlerts = "alerts"
	ServiceDigest = "digest"
	ServiceWorker = "worker"
)

type ServiceFactory func(ctx context.Context, infra *infrastructure) (Service, error)

type Service interface {
	io.Closer
	Start() error
}

func buildCLI() *cli.Command {
	return &cli.Command{
		Name:  "deal-notifier",
		Usage: "watch deal listings and notify subscribers",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start deal notifier services",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to an optional YAML config file; DEALS_ environment variables override it",
					},
					&cli.StringFlag{
						Name:    "services",
						Aliases: []string{"s"},
						Usage:   "comma-separated list of services (app, alerts, digest, worker)",
						Value:   strings.Join([]string{ServiceApp, ServiceAlerts, ServiceDigest}, ","),
					},
				},
				Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
					if len(parseServices(cmd.String("services"))) == 0 {
						return ctx, fmt.Errorf("no services provided")
					}

					if _, err := maxprocs.Set(); err != nil {
						slog.Warn("could not set GOMAXPROCS", slog.Any("error", err))
					}

					return ctx, nil
				},
				Action: start,
			},
		},
	}
}

func parseServices(raw string) []string {
	var services []string
	for name := range strings.SplitSeq(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			services = append(services, name)
		}
	}
	return services
}

func newLogger(conf *config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if conf.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func start(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	defer func() {
		if r := recover(); r != nil {
			var buf bytes.Buffer
			if err := pprof.Lookup("goroutine").WriteTo(&buf, 2); err != nil {
				slog.Error("failed to write goroutine stack trace", slog.Any("error", err))
			}
			slog.Error("application panic", slog.Any("panic", r), slog.String("goroutines", buf.String()))
			os.Exit(1)
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := schedule.RegisterValidations(validate); err != nil {
		return fmt.Errorf("register validations: %w", err)
	}

	conf, err := config.LoadConfig(ctx, cmd.String("config"), validate)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(&conf.Log)
	slog.SetDefault(logger)

	services := parseServices(cmd.String("services"))

	registry := map[string]ServiceFactory{
		ServiceApp:    startAppService,
		ServiceAlerts: startAlertsService,
		ServiceDigest: startDigestService,
		ServiceWorker: startWorkerService,
	}
	for _, name := range services {
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("unknown service: %s", name)
		}
	}

	infra, err := bootstrapInfrastructure(ctx, conf, validate, logger, needsTemporal(conf, services))
	if err != nil {
		return err
	}
	defer infra.Close()

	g, ctx := errgroup.WithContext(ctx)

	for _, name := range services {
		factory := registry[name]
		shutdownComplete := make(chan struct{})

		g.Go(func() error {
			svc, err := factory(ctx, infra)
			if err != nil {
				return fmt.Errorf("failed to init %s: %w", name, err)
			}

			logger.Info("starting service", slog.String("service", name))

			stop := context.AfterFunc(ctx, func() {
				logger.Info("closing service", slog.String("service", name))
				if err := svc.Close(); err != nil {
					logger.Error("closing service", slog.String("service", name), slog.Any("error", err))
				}
				close(shutdownComplete)
			})
			defer stop()

			err = svc.Start()
			if ctx.Err() != nil {
				<-shutdownComplete
			}

			return err
		})
	}

	if err = g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return nil
}

func needsTemporal(conf *config.Config, services []string) bool {
	for _, name := range services {
		if name == ServiceWorker {
			return true
		}
		if name == ServiceDigest && conf.Digest.Dispatch == "temporal" {
			return true
		}
	}
	return false
}

// infrastructure is built once per process and shared by every service.
type infrastructure struct {
	conf      *config.Config
	validate  *validator.Validate
	logger    *slog.Logger
	temporal  client.Client
	db        persistence.Persistence
	redis     *cache.Redis
	source    *deals.Client
	sink      notify.Sink
	ledger    *ledger.Ledger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	evaluator *schedule.Evaluator
}

func (i *infrastructure) Close() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if i.db != nil {
		if err := i.db.Close(closeCtx); err != nil {
			i.logger.Error("failed to close database", slog.Any("error", err))
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.logger.Error("failed to close redis", slog.Any("error", err))
		}
	}
	if i.temporal != nil {
		i.temporal.Close()
	}
}

func bootstrapInfrastructure(
	ctx context.Context,
	conf *config.Config,
	validate *validator.Validate,
	logger *slog.Logger,
	withTemporal bool,
) (*infrastructure, error) {
	infra := &infrastructure{
		conf:     conf,
		validate: validate,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	infra.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	infra.metrics = metrics.New(infra.registry, conf.Metrics.Namespace)

	var err error

	if infra.evaluator, err = digester.NewEvaluator(&conf.Digest); err != nil {
		return nil, err
	}

	if infra.db, err = persistence.New(ctx, &conf.Persistence); err != nil {
		return nil, fmt.Errorf("create persistence handle: %w", err)
	}

	var seenCache ledger.Cache
	if conf.Redis.Addr != "" {
		if infra.redis, err = cache.New(ctx, &conf.Redis, logger); err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		seenCache = infra.redis
	}
	infra.ledger = ledger.New(infra.db, seenCache, logger)

	if infra.source, err = deals.New(ctx, &conf.Source, logger); err != nil {
		infra.Close()
		return nil, fmt.Errorf("create deal source client: %w", err)
	}

	if infra.sink, err = notify.New(&conf.Notify, logger); err != nil {
		infra.Close()
		return nil, fmt.Errorf("create notification sink: %w", err)
	}

	if withTemporal {
		if infra.temporal, err = temporalx.Dial(ctx, &conf.Temporal, logger); err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect to temporal: %w", err)
		}
	}

	return infra, nil
}

func (i *infrastructure) runner() *digester.Runner {
	return digester.NewRunner(
		i.db,
		i.source,
		i.ledger,
		i.sink,
		i.metrics,
		i.logger,
		i.evaluator.Location,
		i.conf.Digest.FetchLimit,
	)
}

func startAppService(ctx context.Context, infra *infrastructure) (Service, error) {
	appInstance, err := app.New(infra.conf, infra.db, infra.source, infra.validate, infra.registry)
	if err != nil {
		return nil, err
	}
	return server.New(api.NewRouter(appInstance), &infra.conf.Server, infra.logger), nil
}

func startAlertsService(ctx context.Context, infra *infrastructure) (Service, error) {
	engine := alerts.NewEngine(infra.db, infra.source, infra.ledger, &infra.conf.Alerts, infra.metrics, infra.logger)
	return alerts.NewService(engine, infra.sink, infra.ledger, infra.conf, infra.metrics, infra.logger)
}

func startDigestService(ctx context.Context, infra *infrastructure) (Service, error) {
	var dispatcher digester.Dispatcher
	switch infra.conf.Digest.Dispatch {
	case "temporal":
		dispatcher = digester.NewTemporalDispatcher(infra.temporal, infra.conf.Temporal.TaskQueue, infra.logger)
	default:
		dispatcher = digester.NewInlineDispatcher(infra.runner())
	}

	var locker digester.Locker
	if infra.redis != nil {
		locker = infra.redis
	}

	scheduler := digester.NewScheduler(infra.db, infra.evaluator, dispatcher, locker, infra.metrics, infra.logger)
	return digester.NewService(scheduler, infra.logger)
}

func startWorkerService(ctx context.Context, infra *infrastructure) (Service, error) {
	return digester.NewWorker(infra.temporal, infra.conf.Temporal.TaskQueue, infra.runner()), nil
}
