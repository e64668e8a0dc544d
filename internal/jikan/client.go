package jikan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"animehub/internal/cache"
	"animehub/internal/metrics"
	"animehub/pkg/models"
)

const maxBodyBytes = 8 << 20

type Config struct {
	BaseURL    string
	Timeout    time.Duration // per attempt
	MaxRetries int
	Backoff    time.Duration
	CacheTTL   time.Duration
	// BreakerFailures consecutive failed calls open the breaker; 0 disables it.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	cache   cache.Cache
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     zerolog.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Provider = (*Client)(nil)

// NewClient builds a client. c may be nil to disable response caching.
func NewClient(cfg Config, c cache.Cache, log zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	cl := &Client{
		cfg:   cfg,
		http:  &http.Client{},
		cache: c,
		log:   log.With().Str("component", "jikan").Logger(),
		sleep: sleepCtx,
	}
	if cfg.BreakerFailures > 0 {
		cl.breaker = newBreaker(cfg, cl.log)
	}
	return cl
}

func newBreaker(cfg Config, log zerolog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.BreakerState.WithLabelValues("jikan").Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "jikan",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) FetchItem(ctx context.Context, malID int64) (*models.CatalogItem, error) {
	key := fmt.Sprintf("external:jikan:anime:%d", malID)

	var cached models.CatalogItem
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	body, err := c.get(ctx, "anime", fmt.Sprintf("/anime/%d/full", malID), nil)
	if err != nil {
		return nil, err
	}

	var env itemEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode anime %d: %v", ErrUpstreamUnavailable, malID, err)
	}
	if env.Data == nil || env.Data.empty() {
		metrics.UpstreamRequests.WithLabelValues("anime", "not_found").Inc()
		return nil, ErrNotFound
	}

	item := normalize(*env.Data)
	c.cacheSet(ctx, key, item)
	return &item, nil
}

func (c *Client) FetchListing(ctx context.Context, req ListingRequest) (*Listing, error) {
	var (
		path  string
		query = url.Values{}
		key   string
	)
	query.Set("sfw", "true")

	switch req.Kind {
	case ListingTop:
		limit := clampLimit(req.Limit)
		path, key = "/top/anime", fmt.Sprintf("external:jikan:top:%d", limit)
		query.Set("limit", strconv.Itoa(limit))
	case ListingSeasonNow:
		limit := clampLimit(req.Limit)
		path, key = "/seasons/now", fmt.Sprintf("external:jikan:season-now:%d", limit)
		query.Set("limit", strconv.Itoa(limit))
	case ListingUpcoming:
		limit := clampLimit(req.Limit)
		path, key = "/seasons/upcoming", fmt.Sprintf("external:jikan:upcoming:%d", limit)
		query.Set("limit", strconv.Itoa(limit))
	case ListingSeason:
		season := strings.ToLower(strings.TrimSpace(req.Season))
		page := req.Page
		if page < 1 {
			page = 1
		}
		path = fmt.Sprintf("/seasons/%d/%s", req.Year, url.PathEscape(season))
		key = fmt.Sprintf("external:jikan:season:%d:%s:%d", req.Year, season, page)
		query.Set("page", strconv.Itoa(page))
	default:
		return nil, fmt.Errorf("unknown listing kind %q", req.Kind)
	}

	var cached Listing
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	body, err := c.get(ctx, string(req.Kind), path, query)
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode %s listing: %v", ErrUpstreamUnavailable, req.Kind, err)
	}

	out := Listing{
		Items:       make([]models.CatalogItem, 0, len(env.Data)),
		HasNextPage: env.Pagination.HasNextPage,
	}
	for _, p := range env.Data {
		out.Items = append(out.Items, normalize(p))
	}
	c.cacheSet(ctx, key, out)
	return &out, nil
}

// get performs the request through the breaker and the retry loop.
func (c *Client) get(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	var (
		body []byte
		err  error
	)
	if c.breaker != nil {
		body, err = c.breaker.Execute(func() ([]byte, error) {
			return c.getWithRetry(ctx, u)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.UpstreamRequests.WithLabelValues(method, "breaker_open").Inc()
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
	} else {
		body, err = c.getWithRetry(ctx, u)
	}

	if errors.Is(err, ErrNotFound) {
		metrics.UpstreamRequests.WithLabelValues(method, "not_found").Inc()
		return nil, err
	}
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(method, "error").Inc()
		c.log.Warn().Err(err).Str("url", u).Msg("upstream request failed")
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(method, "ok").Inc()
	return body, nil
}

// getWithRetry retries 429 and 5xx up to MaxRetries times. The wait is the
// Retry-After header in whole seconds when present, else Backoff*2^(attempt-1).
func (c *Client) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		status, header, body, err := c.do(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		if status < http.StatusBadRequest {
			return body, nil
		}
		if status == http.StatusNotFound {
			return nil, ErrNotFound
		}

		retryable := status == http.StatusTooManyRequests || (status >= 500 && status < 600)
		if !retryable || attempt > c.cfg.MaxRetries {
			return nil, fmt.Errorf("%w: status %d after %d attempt(s)", ErrUpstreamUnavailable, status, attempt)
		}

		wait := c.cfg.Backoff * time.Duration(1<<(attempt-1))
		if ra := strings.TrimSpace(header.Get("Retry-After")); ra != "" && isDigits(ra) {
			secs, _ := strconv.Atoi(ra)
			wait = time.Duration(secs) * time.Second
		}

		metrics.UpstreamRetries.WithLabelValues(strconv.Itoa(status)).Inc()
		c.log.Debug().Int("status", status).Int("attempt", attempt).Dur("wait", wait).Msg("retrying upstream request")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
	}
}

func (c *Client) do(ctx context.Context, u string) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (c *Client) cacheGet(ctx context.Context, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	ok, err := cache.GetJSON(ctx, c.cache, key, dst)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if ok {
		metrics.UpstreamCache.WithLabelValues("hit").Inc()
	} else {
		metrics.UpstreamCache.WithLabelValues("miss").Inc()
	}
	return ok
}

func (c *Client) cacheSet(ctx context.Context, key string, v any) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, c.cache, key, v, c.cfg.CacheTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
