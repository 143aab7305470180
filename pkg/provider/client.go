// Package provider wraps the listing data provider's scraper API: search
// queries returning lightweight listing records, and a detail endpoint
// hydrating full records in batches.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/resilience"
)

const defaultBaseURL = "https://api.scraperhub.io/v2"

// detailBatchSize is the provider's per-request cap on the detail endpoint.
const detailBatchSize = 100

// SearchQuery is one provider search: a saved search URL plus a result cap.
type SearchQuery struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// Client defines the provider operations used by the pipeline.
type Client interface {
	Search(ctx context.Context, q SearchQuery) ([]model.RawListing, error)
	Details(ctx context.Context, urls []string) ([]model.RawListing, error)
}

// APIError is returned on a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound request rate.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithRetryPolicy overrides the default retry behavior.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.retry = p }
}

// WithBatchDelay sets the pause range between detail sub-batches. The actual
// delay is randomized within [min, max] to avoid a detectable cadence.
func WithBatchDelay(min, max time.Duration) Option {
	return func(c *httpClient) { c.delayMin, c.delayMax = min, max }
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.Policy
	delayMin time.Duration
	delayMax time.Duration
}

// NewClient creates a provider client. The defaults suit production: 2 req/s,
// three attempts per call, one to three seconds between detail batches.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(2, 1),
		retry:    resilience.Policy{},
		delayMin: time.Second,
		delayMax: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	SearchURLs []string `json:"searchUrls"`
	MaxResults int      `json:"maxResults,omitempty"`
	Mode       string   `json:"mode"`
}

type detailRequest struct {
	URLs []string `json:"urls"`
}

type itemsResponse struct {
	Items []model.RawListing `json:"items"`
}

func (c *httpClient) Search(ctx context.Context, q SearchQuery) ([]model.RawListing, error) {
	req := searchRequest{SearchURLs: []string{q.URL}, MaxResults: q.MaxResults, Mode: "pagination"}
	items, err := resilience.DoVal(ctx, c.retry, "provider.search", func(ctx context.Context) ([]model.RawListing, error) {
		return c.post(ctx, "/search", req)
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("provider: search %q", q.Name))
	}
	return items, nil
}

// Details hydrates full listing records for the given detail URLs,
// sub-batching to the provider's cap with a randomized pause between
// batches. A failed batch is logged and skipped; the call errors only when
// every batch fails.
func (c *httpClient) Details(ctx context.Context, urls []string) ([]model.RawListing, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	var (
		items   []model.RawListing
		batches int
		failed  int
		lastErr error
	)
	for start := 0; start < len(urls); start += detailBatchSize {
		end := min(start+detailBatchSize, len(urls))
		batches++

		if start > 0 {
			if err := c.pause(ctx); err != nil {
				return items, err
			}
		}

		got, err := resilience.DoVal(ctx, c.retry, "provider.details", func(ctx context.Context) ([]model.RawListing, error) {
			return c.post(ctx, "/details", detailRequest{URLs: urls[start:end]})
		})
		if err != nil {
			failed++
			lastErr = err
			zap.L().Warn("detail batch failed, continuing",
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Error(err))
			continue
		}
		items = append(items, got...)
	}

	if failed == batches {
		return nil, eris.Wrap(lastErr, "provider: all detail batches failed")
	}
	return items, nil
}

func (c *httpClient) pause(ctx context.Context) error {
	d := c.delayMin
	if c.delayMax > c.delayMin {
		d += time.Duration(rand.Int63n(int64(c.delayMax - c.delayMin)))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *httpClient) post(ctx context.Context, path string, body any) ([]model.RawListing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit wait")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var out itemsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	return out.Items, nil
}
