// Package catalog is a client for the external read-only bibliographic API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.openalex.org"
	defaultUserAgent = "sitesync/1.0"
	pageSize         = 200
)

// Client fetches researcher entities and their works from the catalog.
type Client interface {
	FetchEntity(ctx context.Context, id string) (*Entity, error)
	FetchWorksPaginated(ctx context.Context, id string) ([]Work, error)
}

// StatusError is returned for non-2xx responses so callers can
// distinguish 404 from other upstream failures.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the client-side request throttle in requests/second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a catalog API client. All requests pass through a
// token-bucket limiter so bursts from forced syncs stay inside the
// upstream's informal rate limits.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		limiter:   rate.NewLimiter(10, 1),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchEntity fetches a single researcher record.
func (c *httpClient) FetchEntity(ctx context.Context, id string) (*Entity, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/entities/%s", c.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, err
	}
	var e Entity
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal entity")
	}
	e.Raw = body
	return &e, nil
}

// FetchWorksPaginated fetches every work for the researcher, page by page.
// Accumulation stops once the server-reported total is reached, or early
// when a page comes back empty: upstream totals are approximate, and an
// empty page before the reported count must not loop forever. Any page
// failure aborts the whole fetch; partial results are never returned.
func (c *httpClient) FetchWorksPaginated(ctx context.Context, id string) ([]Work, error) {
	log := zap.L().With(zap.String("component", "catalog"), zap.String("catalog_id", id))

	var works []Work
	total := -1

	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/works?filter=author.id:%s&per-page=%d&page=%d&sort=cited_by_count:desc",
			c.baseURL, url.QueryEscape(id), pageSize, page)

		var p worksPage
		if err := c.getJSON(ctx, u, &p); err != nil {
			return nil, eris.Wrapf(err, "catalog: works page %d for %s", page, id)
		}

		works = append(works, p.Results...)
		total = p.Meta.Count

		if len(p.Results) == 0 {
			if len(works) < total {
				log.Debug("works pagination ended before reported count",
					zap.Int("accumulated", len(works)),
					zap.Int("reported", total),
				)
			}
			break
		}
		if len(works) >= total {
			break
		}
	}

	return works, nil
}

func (c *httpClient) getJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "catalog: unmarshal response")
	}
	return nil
}

func (c *httpClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "catalog: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read response")
	}
	return body, nil
}
