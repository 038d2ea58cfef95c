package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"io"
	"log/slog"
	"net/http"
)

const (
	SecretHeader = "X-Notifier-Secret"

	kindUserAlert  = "user_alert"
	kindDigestItem = "digest_item"
)

type (
	webhookSink struct {
		client  *http.Client
		url     string
		secret  string
		breaker *gobreaker.CircuitBreaker[struct{}]
		logger  *slog.Logger
	}

	// envelope is the body posted to the bridge. Exactly one of Alert and Item is set.
	envelope struct {
		Kind  string        `json:"kind"`
		Alert *Notification `json:"alert,omitempty"`
		Item  *DigestItem   `json:"item,omitempty"`
	}
)

func newWebhookSink(config *config.Notify, logger *slog.Logger) (Sink, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("webhook url is required")
	}

	logger = logger.With("component", "notify", "driver", "webhook")

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &webhookSink{
		client:  &http.Client{Timeout: config.Timeout},
		url:     config.WebhookURL,
		secret:  config.WebhookSecret,
		breaker: breaker,
		logger:  logger,
	}, nil
}

func (s *webhookSink) NotifyUser(ctx context.Context, n *Notification) error {
	return s.post(ctx, &envelope{Kind: kindUserAlert, Alert: n})
}

func (s *webhookSink) PostDigest(ctx context.Context, item *DigestItem) error {
	return s.post(ctx, &envelope{Kind: kindDigestItem, Item: item})
}

func (s *webhookSink) post(ctx context.Context, body *envelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", body.Kind, err)
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.send(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	return nil
}

func (s *webhookSink) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set(SecretHeader, s.secret)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: bridge responded with status %d", ErrDeliveryFailed, res.StatusCode)
	}

	return nil
}
