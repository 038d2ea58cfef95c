// Package cronx runs robfig/cron entries as a service that can be started and closed like the
// other long running components.
package cronx

import (
	"context"
	"fmt"
	"github.com/robfig/cron/v3"
	"log/slog"
	"time"
)

const stopTimeout = 30 * time.Second

type (
	// Loop owns a cron scheduler and the context handed to its jobs. Closing the loop cancels that
	// context and waits for running jobs to return.
	Loop struct {
		cron   *cron.Cron
		ctx    context.Context
		cancel context.CancelFunc
		logger *slog.Logger
		ids    map[string]cron.EntryID
	}

	slogAdapter struct {
		logger *slog.Logger
	}
)

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}

// New builds a loop whose entries never overlap with themselves. loc may be nil for UTC.
func New(logger *slog.Logger, loc *time.Location) *Loop {
	if loc == nil {
		loc = time.UTC
	}

	adapter := slogAdapter{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Loop{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		ids:    make(map[string]cron.EntryID),
	}
}

// Add registers fn under spec (standard five field syntax or descriptors such as "@every 15m").
func (l *Loop) Add(name, spec string, fn func(ctx context.Context)) error {
	id, err := l.cron.AddFunc(spec, func() {
		if l.ctx.Err() != nil {
			return
		}
		fn(l.ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	l.ids[name] = id
	l.logger.Info("scheduled job", slog.String("job", name), slog.String("spec", spec))
	return nil
}

// Trigger runs the named entry once in the background, outside its schedule. The overlap guard
// still applies.
func (l *Loop) Trigger(name string) bool {
	id, ok := l.ids[name]
	if !ok {
		return false
	}

	entry := l.cron.Entry(id)
	if !entry.Valid() {
		return false
	}

	go entry.WrappedJob.Run()
	return true
}

// Start blocks until the loop is closed.
func (l *Loop) Start() error {
	l.cron.Start()
	<-l.ctx.Done()
	return nil
}

func (l *Loop) Close() error {
	l.cancel()

	stopped := l.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-time.After(stopTimeout):
		l.logger.Warn("cron jobs did not stop in time")
		return nil
	}
}
