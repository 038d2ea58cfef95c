// Package temporalx holds small helpers shared by the Temporal client and worker wiring.
package temporalx

import (
	"context"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"log/slog"
)

// InterruptOn returns a channel suitable for worker.Run that is closed once ctx is done.
func InterruptOn(ctx context.Context) <-chan any {
	ch := make(chan any)

	go func() {
		defer close(ch)
		<-ctx.Done()
	}()

	return ch
}

// Dial connects to the Temporal frontend with the process logger.
func Dial(ctx context.Context, conf *config.Temporal, logger *slog.Logger) (client.Client, error) {
	return client.DialContext(ctx, client.Options{
		HostPort:  conf.HostPort,
		Namespace: conf.Namespace,
		Logger:    log.NewStructuredLogger(logger),
	})
}
