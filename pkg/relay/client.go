// Package relay forwards the regional subset of accepted listings to the
// partner CRM's inbound webhook, one listing per request with a pacing delay
// so the partner's automation can keep up.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/resilience"
)

// Payload is the simplified listing shape the partner webhook expects.
type Payload struct {
	NativeID      string  `json:"zpid"`
	FullAddress   string  `json:"fullAddress"`
	StreetAddress string  `json:"streetAddress"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ZipCode       string  `json:"zipCode"`
	Price         float64 `json:"price"`
	Estimate      float64 `json:"estimate"`
	Bedrooms      float64 `json:"bedrooms"`
	Bathrooms     float64 `json:"bathrooms"`
	LivingArea    float64 `json:"livingArea"`
	YearBuilt     int     `json:"yearBuilt"`
	HomeType      string  `json:"homeType"`
	Description   string  `json:"description"`
	ListingURL    string  `json:"listingUrl"`
	ImageURL      string  `json:"imgSrc"`
	AgentName     string  `json:"agentName"`
	AgentPhone    string  `json:"agentPhone"`
}

// ToPayload projects a property into the partner shape.
func ToPayload(p *model.Property) Payload {
	return Payload{
		NativeID:      p.Listing.NativeID,
		FullAddress:   p.Listing.FullAddress,
		StreetAddress: p.Listing.StreetAddress,
		City:          p.Listing.City,
		State:         p.Listing.State,
		ZipCode:       p.Listing.ZipCode,
		Price:         p.Listing.Price,
		Estimate:      p.Listing.Estimate,
		Bedrooms:      p.Listing.Bedrooms,
		Bathrooms:     p.Listing.Bathrooms,
		LivingArea:    p.Listing.SquareFeet,
		YearBuilt:     p.Listing.YearBuilt,
		HomeType:      p.Listing.HomeType,
		Description:   p.Listing.Description,
		ListingURL:    p.Listing.URL,
		ImageURL:      p.Listing.FirstImage,
		AgentName:     p.Listing.AgentName,
		AgentPhone:    p.Listing.AgentPhone,
	}
}

// Progress is invoked after each send attempt with running counts.
type Progress func(done, total, sent, failed int)

// Client posts listing payloads to the partner webhook.
type Client interface {
	SendBatch(ctx context.Context, payloads []Payload, onProgress Progress) (sent, failed int, err error)
}

// Option configures the httpClient.
type Option func(*httpClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithItemDelay sets the pause between consecutive sends.
func WithItemDelay(d time.Duration) Option {
	return func(c *httpClient) { c.itemDelay = d }
}

func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.retry = p }
}

type httpClient struct {
	webhookURL string
	http       *http.Client
	itemDelay  time.Duration
	retry      resilience.Policy
}

// NewClient creates a relay client for one webhook URL.
func NewClient(webhookURL string, opts ...Option) Client {
	c := &httpClient{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		itemDelay:  2 * time.Second,
		retry:      resilience.Policy{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendBatch relays payloads one at a time. Individual failures are logged and
// counted, never fatal; the error return fires only on context cancellation
// so a partner outage cannot abort the rest of a pipeline run.
func (c *httpClient) SendBatch(ctx context.Context, payloads []Payload, onProgress Progress) (int, int, error) {
	var sent, failed int
	for i, p := range payloads {
		if i > 0 && c.itemDelay > 0 {
			select {
			case <-ctx.Done():
				return sent, failed, ctx.Err()
			case <-time.After(c.itemDelay):
			}
		}

		if err := c.send(ctx, p); err != nil {
			if ctx.Err() != nil {
				return sent, failed, ctx.Err()
			}
			failed++
			zap.L().Warn("relay send failed",
				zap.String("native_id", p.NativeID),
				zap.String("address", p.FullAddress),
				zap.Error(err))
		} else {
			sent++
		}

		if onProgress != nil {
			onProgress(i+1, len(payloads), sent, failed)
		}
	}
	return sent, failed, nil
}

func (c *httpClient) send(ctx context.Context, p Payload) error {
	return resilience.Do(ctx, c.retry, "relay.send", func(ctx context.Context) error {
		buf, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "marshal payload")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(buf))
		if err != nil {
			return eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "execute request")
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := eris.Errorf("relay: HTTP %d", resp.StatusCode)
			if resilience.RetryableStatus(resp.StatusCode) {
				return resilience.Transient(apiErr, resp.StatusCode)
			}
			return apiErr
		}
		return nil
	})
}
