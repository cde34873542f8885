package repo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/cardinality-observer/internal/utils"
)

const (
	// DefaultScrapeTimeout bounds a single collector scrape.
	DefaultScrapeTimeout = 10 * time.Second
	// maxScrapeBytes caps the body read from the collector.
	maxScrapeBytes = 64 << 20
)

// ScrapeClient fetches exposition text from a collector's metrics endpoint.
type ScrapeClient struct {
	url        string
	httpClient *http.Client
}

// NewScrapeClient constructs a client polling the given URL.
func NewScrapeClient(url string, timeout time.Duration) *ScrapeClient {
	if timeout <= 0 {
		timeout = DefaultScrapeTimeout
	}
	return &ScrapeClient{
		url: strings.TrimSpace(url),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL returns the scrape target.
func (c *ScrapeClient) URL() string { return c.url }

// Scrape returns the raw exposition body. Every failure is a fetch error.
func (c *ScrapeClient) Scrape(ctx context.Context) (string, error) {
	if c == nil || c.url == "" {
		return "", utils.NewAppError(utils.KindFetch, "scrape", "collector URL not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", utils.NewAppError(utils.KindFetch, "scrape", "build request", err)
	}
	req.Header.Set("Accept", "text/plain;version=0.0.4;q=1,*/*;q=0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", utils.NewAppError(utils.KindFetch, "scrape", "collector unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", utils.NewAppError(utils.KindFetch, "scrape", fmt.Sprintf("collector returned %s", resp.Status), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return "", utils.NewAppError(utils.KindFetch, "scrape", "read body", err)
	}
	return string(body), nil
}
