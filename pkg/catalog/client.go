package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tikitools/tiki-crawler/pkg/cache"
	"github.com/tikitools/tiki-crawler/pkg/htmltext"
	"github.com/tikitools/tiki-crawler/pkg/limiter"
	"github.com/tikitools/tiki-crawler/pkg/logging"
	"github.com/tikitools/tiki-crawler/pkg/ratelimit"
)

// Config holds the fetch engine configuration.
type Config struct {
	// BaseURL is the product-detail endpoint; the identifier is appended
	// as the final path segment.
	BaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout is the fixed per-request timeout governing every attempt.
	Timeout time.Duration

	// MaxRetries bounds attempts per identifier (attempt counter 1..MaxRetries).
	MaxRetries int

	// DelayMin/DelayMax bound the uniform random politeness delay slept
	// before every attempt, retries included.
	DelayMin time.Duration
	DelayMax time.Duration

	// RateLimitBackoff is multiplied by the attempt number after a 429.
	RateLimitBackoff time.Duration

	// TimeoutBackoff is multiplied by the attempt number after a timeout.
	TimeoutBackoff time.Duration
}

// DefaultConfig returns the configuration of the original crawl runs.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.tiki.vn/product-detail/api/v1/products",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/124.0.0.0 Safari/537.36",
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		DelayMin:         500 * time.Millisecond,
		DelayMax:         time.Second,
		RateLimitBackoff: 5 * time.Second,
		TimeoutBackoff:   2 * time.Second,
	}
}

// Client fetches products with bounded concurrency and per-identifier
// retry. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *limiter.Limiter
	tracker    *ratelimit.Tracker
	cache      *cache.Cache // nil disables caching
	logger     zerolog.Logger
}

// New creates a fetch client. The limiter bounds concurrent attempts across
// all Fetch calls; the tracker records 429 hits for observability.
func New(cfg Config, lim *limiter.Limiter, tracker *ratelimit.Tracker) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1 (got %d)", cfg.MaxRetries)
	}
	if cfg.DelayMin < 0 || cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("politeness delay range [%s, %s] is invalid", cfg.DelayMin, cfg.DelayMax)
	}
	if lim == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("rate limit tracker is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		limiter:    lim,
		tracker:    tracker,
		logger:     logging.NewLogger("catalog"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetCache attaches an optional product cache.
func (c *Client) SetCache(productCache *cache.Cache) {
	c.cache = productCache
}

// Fetch drives the retry state machine for one identifier to a terminal
// outcome. Per-identifier failures are returned as data, never as errors.
func (c *Client) Fetch(ctx context.Context, id string) Outcome {
	if product, ok := c.cached(ctx, id); ok {
		fetchCacheHitsTotal.Inc()
		c.logger.Debug().Str("id", id).Msg("Product served from cache")
		return successOutcome(id, product)
	}

	for attempt := 1; ; attempt++ {
		d := c.attempt(ctx, id, attempt)

		if !d.retry {
			fetchOutcomesTotal.WithLabelValues(outcomeLabel(d.outcome)).Inc()
			return d.outcome
		}

		if attempt >= c.config.MaxRetries {
			reason := Reason{Kind: d.exhausted}
			if reason.Kind == "" {
				reason.Kind = ReasonRetriesExhausted
			}
			c.logger.Error().
				Str("id", id).
				Int("attempts", attempt).
				Str("reason", reason.String()).
				Msg("Retry attempts exhausted")
			fetchOutcomesTotal.WithLabelValues(string(reason.Kind)).Inc()
			return failureOutcome(id, reason)
		}

		select {
		case <-ctx.Done():
			fetchOutcomesTotal.WithLabelValues(string(ReasonException)).Inc()
			return failureOutcome(id, Reason{Kind: ReasonException})
		case <-time.After(d.wait):
		}
	}
}

// attempt performs one fetch attempt and classifies it. The limiter slot is
// held only for the attempt itself; backoff sleeps happen in Fetch with the
// slot released.
func (c *Client) attempt(ctx context.Context, id string, attempt int) decision {
	if err := c.limiter.Acquire(ctx); err != nil {
		return terminal(failureOutcome(id, Reason{Kind: ReasonException}))
	}
	defer c.limiter.Release()

	select {
	case <-ctx.Done():
		return terminal(failureOutcome(id, Reason{Kind: ReasonException}))
	case <-time.After(c.politenessDelay()):
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error().Err(err).Str("id", id).Msg("Failed to build request")
		return terminal(failureOutcome(id, Reason{Kind: ReasonException}))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	fetchRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if isTimeout(err) {
			wait := c.config.TimeoutBackoff * time.Duration(attempt)
			fetchRequestsTotal.WithLabelValues("timeout").Inc()
			fetchRetriesTotal.WithLabelValues("timeout").Inc()
			c.logger.Warn().
				Str("id", id).
				Int("attempt", attempt).
				Int("max_retries", c.config.MaxRetries).
				Dur("wait", wait).
				Msg("Request timed out")
			return retryAfter(wait, ReasonTimeoutExhausted)
		}
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("id", id).Msg("Request failed")
		return terminal(failureOutcome(id, Reason{Kind: ReasonException}))
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.tracker.Hit(ctx)
		wait := c.config.RateLimitBackoff * time.Duration(attempt)
		fetchRetriesTotal.WithLabelValues("rate_limited").Inc()
		c.logger.Warn().
			Str("id", id).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Rate limited by catalog API")
		return retryAfter(wait, ReasonRateLimitExhausted)

	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn().Str("id", id).Msg("Product not found")
		return terminal(failureOutcome(id, Reason{Kind: ReasonNotFound}))

	case resp.StatusCode != http.StatusOK:
		statusErr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		c.logger.Warn().
			Str("id", id).
			Int("status", resp.StatusCode).
			Msg(statusErr.Error())
		return terminal(failureOutcome(id, Reason{Kind: ReasonHTTPStatus, StatusCode: resp.StatusCode}))
	}

	var pr productResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		if isTimeout(err) {
			// The body read can time out just like the request itself.
			wait := c.config.TimeoutBackoff * time.Duration(attempt)
			fetchRetriesTotal.WithLabelValues("timeout").Inc()
			c.logger.Warn().
				Str("id", id).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Response read timed out")
			return retryAfter(wait, ReasonTimeoutExhausted)
		}
		c.logger.Error().Err(err).Str("id", id).Msg("Failed to decode product body")
		return terminal(failureOutcome(id, Reason{Kind: ReasonException}))
	}

	description, err := htmltext.Strip(pr.Description)
	if err != nil {
		c.logger.Error().Err(err).Str("id", id).Msg("Failed to strip description markup")
		return terminal(failureOutcome(id, Reason{Kind: ReasonException}))
	}

	product := &Product{
		ID:          pr.ID,
		Name:        pr.Name,
		URLKey:      pr.URLKey,
		Price:       pr.Price,
		Description: description,
		ImageURL:    pr.ThumbnailURL,
	}

	c.store(ctx, id, product)

	c.logger.Info().Str("id", id).Msg("Product fetched")
	return terminal(successOutcome(id, product))
}

// politenessDelay returns a uniform random duration in [DelayMin, DelayMax].
func (c *Client) politenessDelay() time.Duration {
	span := int64(c.config.DelayMax - c.config.DelayMin)
	return c.config.DelayMin + time.Duration(rand.Int63n(span+1))
}

// cached consults the optional product cache.
func (c *Client) cached(ctx context.Context, id string) (*Product, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok := c.cache.Get(ctx, id)
	if !ok {
		return nil, false
	}
	var product Product
	if err := json.Unmarshal(data, &product); err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	return &product, true
}

// store writes a fetched product to the optional cache. Cache failures are
// logged and otherwise ignored.
func (c *Client) store(ctx context.Context, id string, product *Product) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(product)
	if err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("Failed to encode product for cache")
		return
	}
	if err := c.cache.Set(ctx, id, data); err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("Failed to cache product")
	}
}

func outcomeLabel(o Outcome) string {
	if o.Success() {
		return "success"
	}
	return string(o.Reason.Kind)
}
