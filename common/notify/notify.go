// Package notify delivers user alerts and category digest items to the chat bridge.
package notify

import (
	"context"
	"errors"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"log/slog"
)

type (
	// Notification is a private alert for the owner of a watch.
	Notification struct {
		RecipientID int64       `json:"recipient_id"`
		Deal        *deals.Deal `json:"deal"`
		Query       string      `json:"query"`
	}

	// DigestItem is one deal posted to the channel of a category job.
	DigestItem struct {
		JobID     int64       `json:"job_id"`
		ChannelID int64       `json:"channel_id"`
		Deal      *deals.Deal `json:"deal"`
	}

	Sink interface {
		NotifyUser(ctx context.Context, n *Notification) error
		PostDigest(ctx context.Context, item *DigestItem) error
	}
)

var (
	ErrUnsupportedSink = errors.New("unsupported notification sink")
	ErrDeliveryFailed  = errors.New("notification delivery failed")
)

func New(config *config.Notify, logger *slog.Logger) (Sink, error) {
	switch config.Driver {
	case "log":
		return newLogSink(logger), nil
	case "webhook":
		return newWebhookSink(config, logger)
	default:
		return nil, ErrUnsupportedSink
	}
}
