// Package searchindex pushes accepted properties into the search engine that
// backs the public listing pages. Documents are imported in bulk batches and
// the engine reports success per document, so partial failures are counted
// rather than fatal.
package searchindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/resilience"
)

// batchSize is the import cap per request.
const batchSize = 100

// Client defines the index operations used by the pipeline.
type Client interface {
	// IndexBatch upserts properties and returns per-record success and
	// failure counts. The error is non-nil only when a whole request fails.
	IndexBatch(ctx context.Context, props []model.Property) (indexed, failed int, err error)
	// Delete removes a document by property ID.
	Delete(ctx context.Context, propertyID string) error
}

// Option configures the httpClient.
type Option func(*httpClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.retry = p }
}

type httpClient struct {
	baseURL    string
	apiKey     string
	collection string
	http       *http.Client
	limiter    *rate.Limiter
	retry      resilience.Policy
}

// NewClient creates an index client for one collection.
func NewClient(baseURL, apiKey, collection string, opts ...Option) Client {
	c := &httpClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		http:       &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(5, 1),
		retry:      resilience.Policy{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// document is the indexed projection of a property: the fields the public
// search UI filters and sorts on.
type document struct {
	ID           string   `json:"id"`
	FullAddress  string   `json:"full_address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zip_code"`
	Price        float64  `json:"price"`
	Estimate     float64  `json:"estimate"`
	RentEstimate float64  `json:"rent_estimate"`
	Bedrooms     float64  `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	SquareFeet   float64  `json:"square_feet"`
	HomeType     string   `json:"home_type"`
	DealTypes    []string `json:"deal_types"`
	NearbyCities []string `json:"nearby_cities"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	FirstImage   string   `json:"first_image"`
	URL          string   `json:"url"`
	Active       bool     `json:"active"`
	FirstSeenAt  int64    `json:"first_seen_at"`
}

func toDocument(p *model.Property) document {
	return document{
		ID:           p.ID,
		FullAddress:  p.Listing.FullAddress,
		City:         p.Listing.City,
		State:        p.Listing.State,
		ZipCode:      p.Listing.ZipCode,
		Price:        p.Listing.Price,
		Estimate:     p.Listing.Estimate,
		RentEstimate: p.Listing.RentEstimate,
		Bedrooms:     p.Listing.Bedrooms,
		Bathrooms:    p.Listing.Bathrooms,
		SquareFeet:   p.Listing.SquareFeet,
		HomeType:     p.Listing.HomeType,
		DealTypes:    p.Classification.DealTypes,
		NearbyCities: p.NearbyCities,
		Latitude:     p.Listing.Latitude,
		Longitude:    p.Listing.Longitude,
		FirstImage:   p.Listing.FirstImage,
		URL:          p.Listing.URL,
		Active:       p.Active,
		FirstSeenAt:  p.FirstSeenAt.Unix(),
	}
}

type importResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (c *httpClient) IndexBatch(ctx context.Context, props []model.Property) (int, int, error) {
	var indexed, failed int
	for start := 0; start < len(props); start += batchSize {
		end := min(start+batchSize, len(props))
		ok, bad, err := c.importBatch(ctx, props[start:end])
		if err != nil {
			return indexed, failed, err
		}
		indexed += ok
		failed += bad
	}
	return indexed, failed, nil
}

func (c *httpClient) importBatch(ctx context.Context, props []model.Property) (int, int, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i := range props {
		if err := enc.Encode(toDocument(&props[i])); err != nil {
			return 0, 0, eris.Wrap(err, "searchindex: encode document")
		}
	}

	path := fmt.Sprintf("/collections/%s/documents/import?action=upsert", url.PathEscape(c.collection))
	results, err := resilience.DoVal(ctx, c.retry, "searchindex.import", func(ctx context.Context) ([]importResult, error) {
		return c.doImport(ctx, path, body.Bytes())
	})
	if err != nil {
		return 0, 0, eris.Wrap(err, "searchindex: import batch")
	}

	var ok, bad int
	for i, r := range results {
		if r.Success {
			ok++
			continue
		}
		bad++
		zap.L().Warn("document rejected by search index",
			zap.String("property_id", props[min(i, len(props)-1)].ID),
			zap.String("reason", r.Error))
	}
	return ok, bad, nil
}

func (c *httpClient) doImport(ctx context.Context, path string, body []byte) ([]importResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-TYPESENSE-API-KEY", c.apiKey)

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
		apiErr := eris.Errorf("searchindex: HTTP %d: %s", resp.StatusCode, string(data))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	// The import endpoint answers one JSON object per submitted line.
	var results []importResult
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r importResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, eris.Wrap(err, "decode import result line")
		}
		results = append(results, r)
	}
	return results, sc.Err()
}

func (c *httpClient) Delete(ctx context.Context, propertyID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	path := fmt.Sprintf("/collections/%s/documents/%s", url.PathEscape(c.collection), url.PathEscape(propertyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("X-TYPESENSE-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "searchindex: delete document")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// A missing document is already deleted.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("searchindex: delete %s: HTTP %d", propertyID, resp.StatusCode)
	}
	return nil
}
