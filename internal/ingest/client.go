package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"killrelay/internal/config"
	"killrelay/internal/constants"
	"killrelay/pkg/circuitbreaker"
	"killrelay/pkg/metrics"
	"killrelay/pkg/models"
	"killrelay/pkg/retry"
)

const (
	endpointFeed   = "feed"
	endpointDetail = "detail"

	// detailRate keeps killmail detail lookups well below the upstream error
	// budget.
	detailRate  = 20
	detailBurst = 5
)

// Client talks to the killmail feed and the killmail detail API.
type Client struct {
	http      *http.Client
	feedURL   string
	queueID   string
	ttw       int
	userAgent string
	limiter   *rate.Limiter
	breaker   *circuitbreaker.Wrapper
}

func NewClient(cfg config.IngestConfig, cbCfg config.CircuitBreakerConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	// the feed may hold a poll open for ttw seconds
	if hold := time.Duration(cfg.TimeToWait)*time.Second + constants.DefaultHTTPTimeout; hold > timeout {
		timeout = hold
	}

	c := &Client{
		http:      &http.Client{Timeout: timeout},
		feedURL:   cfg.FeedURL,
		queueID:   cfg.QueueID,
		ttw:       cfg.TimeToWait,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(detailRate), detailBurst),
	}

	if cbCfg.Enabled {
		c.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("killmail-detail", cbCfg))
	}
	return c
}

func (c *Client) pollURL() (string, error) {
	u, err := url.Parse(c.feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	q.Set("queueID", c.queueID)
	if c.ttw > 0 {
		q.Set("ttw", strconv.Itoa(c.ttw))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Poll waits for the next package. A nil package means the poll ended
// without news.
func (c *Client) Poll(ctx context.Context) (*Package, error) {
	target, err := c.pollURL()
	if err != nil {
		return nil, retry.NewFatalError(err)
	}

	var resp Response
	if err := c.getJSON(ctx, endpointFeed, target, &resp); err != nil {
		return nil, err
	}
	return resp.Package, nil
}

// FetchKillmail loads a killmail from its detail href.
func (c *Client) FetchKillmail(ctx context.Context, href string) (*models.Killmail, error) {
	if href == "" {
		return nil, retry.NewFatalError(fmt.Errorf("package has neither killmail nor href"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fetch := func() (interface{}, error) {
		var km models.Killmail
		if err := c.getJSON(ctx, endpointDetail, href, &km); err != nil {
			return nil, err
		}
		return &km, nil
	}

	if c.breaker == nil {
		result, err := fetch()
		if err != nil {
			return nil, err
		}
		return result.(*models.Killmail), nil
	}

	result, err := c.breaker.ExecuteWithContext(ctx, fetch)
	c.breaker.RecordRequest(err == nil)
	if err != nil {
		return nil, err
	}
	return result.(*models.Killmail), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveIngestFetchDuration(endpoint, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := fmt.Errorf("%s returned status: %d", endpoint, resp.StatusCode)
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusTooManyRequests {
			return retry.NewFatalError(statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to decode %s response: %w", endpoint, err))
	}
	return nil
}
