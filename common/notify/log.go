package notify

import (
	"context"
	"log/slog"
)

type logSink struct {
	logger *slog.Logger
}

func newLogSink(logger *slog.Logger) Sink {
	return &logSink{logger: logger.With("component", "notify", "driver", "log")}
}

func (s *logSink) NotifyUser(ctx context.Context, n *Notification) error {
	s.logger.InfoContext(ctx, "user alert",
		slog.Int64("recipient_id", n.RecipientID),
		slog.String("query", n.Query),
		slog.String("deal_id", n.Deal.ID),
		slog.String("title", n.Deal.Title),
	)
	return nil
}

func (s *logSink) PostDigest(ctx context.Context, item *DigestItem) error {
	s.logger.InfoContext(ctx, "digest item",
		slog.Int64("job_id", item.JobID),
		slog.Int64("channel_id", item.ChannelID),
		slog.String("deal_id", item.Deal.ID),
		slog.String("title", item.Deal.Title),
	)
	return nil
}
