package pipeline

import (
	"context"
	"sync"

	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/pkg/alerts"
	"github.com/ownerfi/dealflow/pkg/provider"
	"github.com/ownerfi/dealflow/pkg/relay"
)

// fakeStore is an in-memory store.Store for orchestration tests.
type fakeStore struct {
	mu        sync.Mutex
	props     map[string]model.Property
	runs      []model.RunSummary
	lookupErr error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{props: make(map[string]model.Property)}
}

func (f *fakeStore) FilterKnown(_ context.Context, ids []string) (map[string]bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, 0, f.lookupErr
	}
	known := make(map[string]bool)
	for _, id := range ids {
		if _, ok := f.props[id]; ok {
			known[id] = true
		}
	}
	return known, 0, nil
}

func (f *fakeStore) UpsertBatch(_ context.Context, props []model.Property) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, p := range props {
		if prev, ok := f.props[p.ID]; ok {
			p.RelaySent = p.RelaySent || prev.RelaySent
			p.FirstSeenAt = prev.FirstSeenAt
		}
		f.props[p.ID] = p
	}
	return len(props), nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*model.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.props[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeStore) ListActive(_ context.Context, limit int) ([]model.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Property
	for _, p := range f.props {
		if p.Active && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkInactive(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.props[id]
	p.Active = false
	p.InactiveReason = reason
	f.props[id] = p
	return nil
}

func (f *fakeStore) UpdateRefresh(_ context.Context, p *model.Property) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[p.ID] = *p
	return nil
}

func (f *fakeStore) SaveRunSummary(_ context.Context, s *model.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *s)
	return nil
}

func (f *fakeStore) ListRuns(_ context.Context, limit int) ([]model.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

// fakeProvider serves canned search and detail responses keyed by search
// name and listing URL.
type fakeProvider struct {
	mu         sync.Mutex
	searches   map[string][]model.RawListing
	details    map[string]model.RawListing
	searchErr  map[string]error
	detailErr  error
	detailURLs [][]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		searches:  make(map[string][]model.RawListing),
		details:   make(map[string]model.RawListing),
		searchErr: make(map[string]error),
	}
}

func (f *fakeProvider) Search(_ context.Context, q provider.SearchQuery) ([]model.RawListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.searchErr[q.Name]; err != nil {
		return nil, err
	}
	return f.searches[q.Name], nil
}

func (f *fakeProvider) Details(_ context.Context, urls []string) ([]model.RawListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailURLs = append(f.detailURLs, urls)
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	var out []model.RawListing
	for _, u := range urls {
		if raw, ok := f.details[u]; ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed []model.Property
	deleted []string
	err     error
	failAll bool
}

func (f *fakeIndex) IndexBatch(_ context.Context, props []model.Property) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	if f.failAll {
		return 0, len(props), nil
	}
	f.indexed = append(f.indexed, props...)
	return len(props), 0, nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRelay struct {
	mu       sync.Mutex
	payloads []relay.Payload
	failAll  bool
}

func (f *fakeRelay) SendBatch(_ context.Context, payloads []relay.Payload, onProgress relay.Progress) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		if onProgress != nil {
			onProgress(len(payloads), len(payloads), 0, len(payloads))
		}
		return 0, len(payloads), nil
	}
	f.payloads = append(f.payloads, payloads...)
	if onProgress != nil {
		onProgress(len(payloads), len(payloads), len(payloads), 0)
	}
	return len(payloads), 0, nil
}

type fakeAlerts struct {
	mu    sync.Mutex
	deals []alerts.Deal
}

func (f *fakeAlerts) SendDeals(_ context.Context, deals []alerts.Deal) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deals = append(f.deals, deals...)
	return len(deals), 0
}
