// Package alerts sends SMS notifications for high-value cash deals to the
// acquisitions team. Sends are fire-and-forget: a failed alert is logged and
// counted but never propagates into the pipeline result.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Deal is one cash-deal alert: the discounted listing and where to see it.
type Deal struct {
	StreetAddress string
	AskingPrice   float64
	Estimate      float64
	ListingURL    string
}

// Client sends deal alerts.
type Client interface {
	SendDeals(ctx context.Context, deals []Deal) (sent, failed int)
}

// Option configures the httpClient.
type Option func(*httpClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	gatewayURL string
	toNumber   string
	http       *http.Client
	printer    *message.Printer
}

// NewClient creates an alert client posting to an SMS gateway webhook.
func NewClient(gatewayURL, toNumber string, opts ...Option) Client {
	c := &httpClient{
		gatewayURL: gatewayURL,
		toNumber:   toNumber,
		http:       &http.Client{Timeout: 15 * time.Second},
		printer:    message.NewPrinter(language.AmericanEnglish),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendDeals formats and sends one SMS per deal. Failures are logged only.
func (c *httpClient) SendDeals(ctx context.Context, deals []Deal) (int, int) {
	var sent, failed int
	for _, d := range deals {
		if err := c.send(ctx, d); err != nil {
			failed++
			zap.L().Warn("cash deal alert failed",
				zap.String("address", d.StreetAddress),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent, failed
}

// formatDeal renders the SMS body with grouped thousands, e.g. "$152,000".
func (c *httpClient) formatDeal(d Deal) string {
	discount := 0.0
	if d.Estimate > 0 {
		discount = (1 - d.AskingPrice/d.Estimate) * 100
	}
	return c.printer.Sprintf("Cash deal: %s\nAsking $%d (est. $%d, %.0f%% off)\n%s",
		d.StreetAddress, int64(d.AskingPrice), int64(d.Estimate), discount, d.ListingURL)
}

func (c *httpClient) send(ctx context.Context, d Deal) error {
	buf, err := json.Marshal(smsRequest{To: c.toNumber, Body: c.formatDeal(d)})
	if err != nil {
		return eris.Wrap(err, "marshal sms")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(buf))
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
		return eris.New(fmt.Sprintf("alerts: HTTP %d", resp.StatusCode))
	}
	return nil
}
