package miniflux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nalabelle/miniflux-filter/internal/config"
	"github.com/nalabelle/miniflux-filter/internal/constants"
	"github.com/nalabelle/miniflux-filter/internal/logger"
	"github.com/nalabelle/miniflux-filter/pkg/circuitbreaker"
	pkgerrors "github.com/nalabelle/miniflux-filter/pkg/errors"
	"github.com/nalabelle/miniflux-filter/pkg/metrics"
	"github.com/nalabelle/miniflux-filter/pkg/retry"
)

// Client talks to the Miniflux REST API. Every call carries its own timeout
// and passes through a shared rate limiter; an optional circuit breaker stops
// hammering a dead instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *circuitbreaker.Wrapper
	log        logger.Logger
}

func NewClient(cfg config.MinifluxConfig, breaker *circuitbreaker.Wrapper, log logger.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5.0
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    cfg.URL,
		token:      cfg.APIToken,
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    breaker,
		log:        log,
	}
}

// CheckConnection verifies reachability and authentication via /v1/me.
func (c *Client) CheckConnection(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/me", nil, nil, "me")
}

// WaitReady probes the API with exponential backoff until it answers or the
// retry budget is exhausted. Used once at startup.
func (c *Client) WaitReady(ctx context.Context) error {
	policy := retry.DefaultPolicy()
	return retry.RetryNotify(ctx, policy,
		func() error { return c.CheckConnection(ctx) },
		func(err error, next time.Duration) {
			c.log.WarnwCtx(ctx, "Miniflux not reachable, retrying",
				"error", err,
				"next_attempt_in", next,
			)
		},
	)
}

// FetchUnread returns all currently-unread entries for a feed, paginating
// until the upstream reports no more, bounded by a hard page cap.
func (c *Client) FetchUnread(ctx context.Context, feedID int64) ([]Entry, error) {
	var all []Entry

	for page := 0; page < constants.MaxEntryPages; page++ {
		path := fmt.Sprintf("/v1/feeds/%d/entries?status=unread&limit=%d&offset=%d",
			feedID, constants.EntriesPageSize, len(all))

		var resp entriesResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp, "fetch_unread"); err != nil {
			return nil, err
		}

		all = append(all, resp.Entries...)
		if len(resp.Entries) < constants.EntriesPageSize || int64(len(all)) >= resp.Total {
			break
		}
	}

	c.log.DebugwCtx(ctx, "Fetched unread entries", "feed_id", feedID, "count", len(all))
	return all, nil
}

// MarkRead marks a single entry as read.
func (c *Client) MarkRead(ctx context.Context, entryID int64) error {
	body := markEntriesRequest{
		EntryIDs: []int64{entryID},
		Status:   "read",
	}
	return c.do(ctx, http.MethodPut, "/v1/entries", body, nil, "mark_read")
}

// Feeds lists all feeds known to the upstream instance.
func (c *Client) Feeds(ctx context.Context) ([]Feed, error) {
	var feeds []Feed
	if err := c.do(ctx, http.MethodGet, "/v1/feeds", nil, &feeds, "feeds"); err != nil {
		return nil, err
	}
	return feeds, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUpstream)
	}

	call := func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	}

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(ctx, call)
	} else {
		_, err = call()
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(operation, status).Inc()

	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUpstream)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
