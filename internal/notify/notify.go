// Package notify dispatches buyer-match triggers for newly persisted
// owner-finance properties. Delivery is fire and forget: a bounded worker
// pool drains an in-memory queue, failures are logged and counted, and a
// full queue drops rather than blocking the pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/model"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Trigger is the payload posted to the buyer-matching service for each
// new owner-finance property.
type Trigger struct {
	PropertyID  string   `json:"propertyId"`
	FullAddress string   `json:"fullAddress"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Price       float64  `json:"price"`
	DealTypes   []string `json:"dealTypes"`
}

// Notifier owns the worker pool. Create with New, stop with Close.
type Notifier struct {
	url     string
	client  *http.Client
	workers int
	queue   chan Trigger
	wg      sync.WaitGroup

	// mu orders queue sends against the close of the channel so a
	// concurrent Enqueue can never send on a closed queue.
	mu     sync.RWMutex
	closed bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) Option {
	return func(nf *Notifier) {
		if n > 0 {
			nf.workers = n
		}
	}
}

// WithHTTPClient overrides the HTTP client used for delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(nf *Notifier) { nf.client = c }
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(nf *Notifier) {
		if n > 0 {
			nf.queue = make(chan Trigger, n)
		}
	}
}

// New starts a Notifier with workers draining the queue until Close.
func New(url string, opts ...Option) *Notifier {
	nf := &Notifier{
		url:     url,
		client:  &http.Client{Timeout: 15 * time.Second},
		workers: defaultWorkers,
		queue:   make(chan Trigger, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(nf)
	}

	for i := 0; i < nf.workers; i++ {
		nf.wg.Add(1)
		go nf.worker()
	}
	return nf
}

// Enqueue queues a trigger for the property. It never blocks: when the
// queue is full or the notifier is closed the trigger is dropped with a
// warning. Returns true when the trigger was accepted.
func (nf *Notifier) Enqueue(p *model.Property) bool {
	if nf.url == "" {
		return false
	}
	t := Trigger{
		PropertyID:  p.ID,
		FullAddress: p.Listing.FullAddress,
		City:        p.Listing.City,
		State:       p.Listing.State,
		Price:       p.Listing.Price,
		DealTypes:   p.Classification.DealTypes,
	}

	nf.mu.RLock()
	defer nf.mu.RUnlock()
	if nf.closed {
		return false
	}
	select {
	case nf.queue <- t:
		return true
	default:
		nf.dropped.Add(1)
		zap.L().Warn("notify: queue full, dropping trigger",
			zap.String("property_id", p.ID))
		return false
	}
}

// Close stops accepting triggers and waits for in-flight deliveries.
func (nf *Notifier) Close() {
	nf.mu.Lock()
	if nf.closed {
		nf.mu.Unlock()
		return
	}
	nf.closed = true
	close(nf.queue)
	nf.mu.Unlock()
	nf.wg.Wait()
}

// Stats reports delivery counters since the notifier started.
func (nf *Notifier) Stats() (sent, failed, dropped int) {
	return int(nf.sent.Load()), int(nf.failed.Load()), int(nf.dropped.Load())
}

func (nf *Notifier) worker() {
	defer nf.wg.Done()
	for t := range nf.queue {
		if err := nf.deliver(t); err != nil {
			nf.failed.Add(1)
			zap.L().Warn("notify: trigger delivery failed",
				zap.String("property_id", t.PropertyID),
				zap.Error(err))
			continue
		}
		nf.sent.Add(1)
	}
}

func (nf *Notifier) deliver(t Trigger) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "notify: marshal trigger")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nf.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := nf.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: post trigger")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: trigger returned status %d", resp.StatusCode)
	}
	return nil
}
