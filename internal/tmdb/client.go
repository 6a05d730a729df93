package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/metrics"
	"github.com/JakeFAU/catalog-importer/internal/policy/retry"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointDiscover = "discover"
	EndpointDetails  = "details"
	EndpointCredits  = "credits"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultLanguage = "en-US"
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 512
	sortPopularity  = "popularity.desc"
)

// Limiter paces outbound requests.
type Limiter interface {
	Wait(ctx context.Context, endpoint string) error
}

// RetryPolicy decides whether a failed request is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
	MaxDelay() time.Duration
}

// Config captures the parameters required to reach the catalog API.
type Config struct {
	BaseURL         string
	APIKey          string
	DisplayLanguage string
	Timeout         time.Duration
	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
}

// Client issues catalog API requests with pacing and bounded 429 retries.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	apiKey     string
	language   string
	limiter    Limiter
	retry      RetryPolicy
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a Client. limiter and policy may be nil.
func New(cfg Config, limiter Limiter, policy RetryPolicy, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	raw := cfg.BaseURL
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	language := cfg.DisplayLanguage
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		apiKey:     cfg.APIKey,
		language:   language,
		limiter:    limiter,
		retry:      policy,
		logger:     logger,
		sleep:      retry.Sleep,
	}, nil
}

// Discover fetches one page of movies filtered by original language and
// primary release year, most popular first.
func (c *Client) Discover(ctx context.Context, q DiscoverQuery) (DiscoverResponse, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("language", c.language)
	if q.Region != "" {
		params.Set("region", q.Region)
	}
	params.Set("with_original_language", q.Language)
	params.Set("sort_by", sortPopularity)
	params.Set("primary_release_year", strconv.Itoa(q.Year))
	params.Set("page", strconv.Itoa(page))

	var out DiscoverResponse
	if err := c.get(ctx, EndpointDiscover, []string{"discover", "movie"}, params, &out); err != nil {
		return DiscoverResponse{}, err
	}
	return out, nil
}

// MovieDetails fetches /movie/{id}.
func (c *Client) MovieDetails(ctx context.Context, id int64) (MovieDetails, error) {
	var out MovieDetails
	if err := c.get(ctx, EndpointDetails, []string{"movie", strconv.FormatInt(id, 10)}, nil, &out); err != nil {
		return MovieDetails{}, err
	}
	return out, nil
}

// MovieCredits fetches /movie/{id}/credits.
func (c *Client) MovieCredits(ctx context.Context, id int64) (Credits, error) {
	var out Credits
	path := []string{"movie", strconv.FormatInt(id, 10), "credits"}
	if err := c.get(ctx, EndpointCredits, path, nil, &out); err != nil {
		return Credits{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, path []string, params url.Values, out any) error {
	u := c.baseURL.JoinPath(path...)
	query := url.Values{}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}
	query.Set("api_key", c.apiKey)
	u.RawQuery = query.Encode()
	target := u.String()

	for attempt := 1; ; attempt++ {
		err := c.once(ctx, endpoint, target, out)
		if err == nil {
			return nil
		}
		limited := IsRateLimited(err)
		if limited {
			metrics.ObserveRateLimited(endpoint)
		}
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) {
			if limited {
				return fmt.Errorf("%s after %d attempts: %w: %w", endpoint, attempt, ErrRateLimited, err)
			}
			return err
		}

		delay := c.retry.Backoff(attempt)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > delay {
			delay = min(se.RetryAfter, c.retry.MaxDelay())
		}
		c.logger.Warn("catalog api request throttled, backing off",
			zap.String("endpoint", endpoint),
			zap.String("path", u.Path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s backoff: %w", endpoint, err)
		}
	}
}

func (c *Client) once(ctx context.Context, endpoint, target string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(endpoint, 0, time.Since(start))
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactURL(urlErr.URL)
		}
		return fmt.Errorf("%s: request: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	metrics.ObserveAPIRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
