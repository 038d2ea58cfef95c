package deals

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/schedule"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type (
	Source interface {
		Search(ctx context.Context, in *SearchInput) (*SearchOutput, error)
		ByCategory(ctx context.Context, in *ByCategoryInput) (*ByCategoryOutput, error)
	}

	Client struct {
		httpClient *http.Client
		baseURL    *url.URL
		limiter    *rate.Limiter
		breaker    *gobreaker.CircuitBreaker[[]*Deal]
		logger     *slog.Logger
	}

	userAgentRoundTripper struct {
		userAgent string
		next      http.RoundTripper
	}
)

var _ Source = (*Client)(nil)

// ErrSourceFailure marks every failure to obtain listings from the deal source, including an open
// circuit breaker.
var ErrSourceFailure = errors.New("deal source failure")

func (urt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", urt.userAgent)
	}
	return urt.next.RoundTrip(req)
}

func New(ctx context.Context, conf *config.Source, logger *slog.Logger) (*Client, error) {
	baseURL, err := url.Parse(conf.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse deal source base url: %w", err)
	}

	transport := http.RoundTripper(&userAgentRoundTripper{
		userAgent: conf.UserAgent,
		next:      http.DefaultTransport,
	})

	if conf.ClientID != "" {
		creds := &clientcredentials.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			TokenURL:     conf.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}

		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Timeout:   conf.Timeout,
			Transport: transport,
		})
		tokenSrc := creds.TokenSource(tokenCtx)

		if _, err = tokenSrc.Token(); err != nil {
			return nil, fmt.Errorf("failed to obtain initial OAuth2 token: %w", err)
		}

		transport = &oauth2.Transport{
			Source: tokenSrc,
			Base:   transport,
		}
	}

	logger = logger.With("component", "deals")

	limit := rate.Inf
	if conf.RequestsPerSecond > 0 {
		limit = rate.Limit(conf.RequestsPerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker[[]*Deal](gobreaker.Settings{
		Name:        "deal-source",
		MaxRequests: 1,
		Timeout:     conf.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= conf.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		httpClient: &http.Client{
			Timeout:   conf.Timeout,
			Transport: transport,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, max(conf.Burst, 1)),
		breaker: breaker,
		logger:  logger,
	}, nil
}

func (c *Client) Search(ctx context.Context, in *SearchInput) (*SearchOutput, error) {
	sort := in.Sort
	if sort == "" {
		sort = SortNew
	}

	query := url.Values{}
	query.Set("q", in.Query)
	query.Set("limit", strconv.Itoa(in.Limit))
	query.Set("sort", sort)

	found, err := c.fetch(ctx, "search", query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", in.Query, err)
	}

	return &SearchOutput{Deals: found}, nil
}

func (c *Client) ByCategory(ctx context.Context, in *ByCategoryInput) (*ByCategoryOutput, error) {
	if err := schedule.ValidateSlug(in.Slug); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(in.Limit))

	found, err := c.fetch(ctx, "groups/"+in.Slug, query)
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", in.Slug, err)
	}

	return &ByCategoryOutput{Deals: found}, nil
}

func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]*Deal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	found, err := c.breaker.Execute(func() ([]*Deal, error) {
		return c.do(ctx, path, query)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrSourceFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceFailure, err)
	}

	return found, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) ([]*Deal, error) {
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrSourceFailure, res.StatusCode, endpoint.Path)
	}

	var body listingResponse
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrSourceFailure, err)
	}

	found := make([]*Deal, 0, len(body.Deals))
	for _, l := range body.Deals {
		if l == nil || l.Link == "" {
			continue
		}
		found = append(found, l.deal())
	}

	c.logger.Debug("fetched deals",
		slog.String("path", endpoint.Path),
		slog.Int("count", len(found)),
		slog.Duration("took", time.Since(start)),
	)

	return found, nil
}
