package library

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the local Better BibTeX auto-export endpoint.
	DefaultEndpoint = "http://127.0.0.1:23119/better-bibtex/export/library?/1/library.betterbibtexjson"

	// DefaultTimeout bounds one export fetch.
	DefaultTimeout = 10 * time.Second

	// fetchRateLimit is requests per second against the local endpoint.
	fetchRateLimit = 2.0

	userAgent = "citematch/0.1"
)

// Client fetches library exports from a Zotero Better BibTeX endpoint.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	endpoint   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint sets a custom export endpoint.
func WithEndpoint(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a Better BibTeX export client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(fetchRateLimit), 1),
		endpoint:   DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint the client fetches from.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchItems fetches and decodes the library export. A failed fetch is fatal
// to a resolution run: no partial result is meaningful without a library.
func (c *Client) FetchItems(ctx context.Context) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building export request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching Better BibTeX export from %s (is Zotero running with Better BibTeX?): %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching Better BibTeX export from %s: status %d", c.endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading export response: %w", err)
	}
	return ParseExport(body)
}
