// Package upstream implements the HTTP boundary to the pricing API: the
// feeds endpoint for quote batches and the instruments endpoint for the
// static instrument list.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ratewatch/config"
	"ratewatch/internal/feed"
	"ratewatch/logger"
)

// FeedBatch is one feeds response: the raw readings plus the server's
// reported update timestamp.
type FeedBatch struct {
	Readings   []feed.RawReading
	LastUpdate time.Time
}

// Client talks to the pricing API. Outgoing requests share one http.Client
// with a hard timeout and, when configured, an outgoing request budget.
type Client struct {
	httpClient     *http.Client
	feedsURL       string
	instrumentsURL string
	limiter        *rate.Limiter
	log            *logger.Log
}

func NewClient(cfg config.UpstreamConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.BurstSize
		if burst <= 0 {
			burst = cfg.RateLimit.RequestsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		feedsURL:       cfg.FeedsURL,
		instrumentsURL: cfg.InstrumentsURL,
		limiter:        limiter,
		log:            logger.GetLogger(),
	}
}

// FetchFeeds requests quotes for the given instruments. An empty id set
// omits the ids parameter, which the feeds endpoint treats as "all
// instruments".
func (c *Client) FetchFeeds(ctx context.Context, ids []int) (*FeedBatch, error) {
	endpoint, err := url.Parse(c.feedsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feeds url: %w", err)
	}

	if len(ids) > 0 {
		query := endpoint.Query()
		query.Set("ids", joinIDs(ids))
		endpoint.RawQuery = query.Encode()
	}

	body, err := c.get(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}

	payload := struct {
		Feeds      []feed.RawReading `json:"Feeds"`
		LastUpdate string            `json:"LastUpdate"`
	}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode feeds response: %w", err)
	}

	lastUpdate, err := time.Parse(time.RFC3339, payload.LastUpdate)
	if err != nil {
		// A batch with a bad timestamp is still worth keeping.
		c.log.WithComponent("upstream").WithFields(logger.Fields{
			"last_update": payload.LastUpdate,
		}).Debug("unparsable LastUpdate, substituting local time")
		lastUpdate = time.Now()
	}

	return &FeedBatch{Readings: payload.Feeds, LastUpdate: lastUpdate}, nil
}

// FetchInstruments requests the static instrument list.
func (c *Client) FetchInstruments(ctx context.Context) ([]feed.Instrument, error) {
	body, err := c.get(ctx, c.instrumentsURL)
	if err != nil {
		return nil, err
	}

	var instruments []feed.Instrument
	if err := json.Unmarshal(body, &instruments); err != nil {
		return nil, fmt.Errorf("failed to decode instruments response: %w", err)
	}

	return instruments, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	requestID := uuid.NewString()
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ratewatch/1.0")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.RecordCounter("upstream_fetch_bytes", len(body))
	c.log.WithComponent("upstream").WithFields(logger.Fields{
		"request_id":  requestID,
		"url":         endpoint,
		"bytes":       len(body),
		"duration_ms": float64(time.Since(started).Nanoseconds()) / 1e6,
	}).Debug("upstream fetch completed")

	return body, nil
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
