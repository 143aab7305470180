package refresh

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownerfi/dealflow/internal/config"
	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/runlock"
	"github.com/ownerfi/dealflow/pkg/provider"
)

type fakeStore struct {
	mu    sync.Mutex
	props map[string]model.Property
}

func (f *fakeStore) FilterKnown(context.Context, []string) (map[string]bool, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) UpsertBatch(context.Context, []model.Property) (int, error) { return 0, nil }

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
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastRefreshed.Before(out[j].LastRefreshed) })
	if len(out) > limit {
		out = out[:limit]
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

func (f *fakeStore) SaveRunSummary(context.Context, *model.RunSummary) error { return nil }
func (f *fakeStore) ListRuns(context.Context, int) ([]model.RunSummary, error) {
	return nil, nil
}
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

type fakeProvider struct {
	details map[string]model.RawListing
}

func (f *fakeProvider) Search(context.Context, provider.SearchQuery) ([]model.RawListing, error) {
	return nil, nil
}

func (f *fakeProvider) Details(_ context.Context, urls []string) ([]model.RawListing, error) {
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
	deleted []string
}

func (f *fakeIndex) IndexBatch(context.Context, []model.Property) (int, int, error) {
	return 0, 0, nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Refresh.BatchSize = 200
	cfg.Refresh.MaxNoResultStreak = 3
	return cfg
}

func activeProperty(zpid string) model.Property {
	return model.Property{
		ID: model.PropertyID(zpid),
		Listing: model.Listing{
			NativeID:    zpid,
			URL:         "https://www.zillow.com/homedetails/" + zpid + "_zpid/",
			FullAddress: "12 Oak St, Memphis, TN 38103",
			City:        "Memphis",
			State:       "TN",
			Price:       150000,
			Description: "Owner financing available.",
		},
		Classification: model.Classification{
			IsOwnerFinance: true,
			DealTypes:      []string{model.DealTypeOwnerFinance},
		},
		Active:        true,
		LastRefreshed: time.Now().Add(-24 * time.Hour),
	}
}

func detailFor(p model.Property, status, desc string, price float64) model.RawListing {
	zpid := p.Listing.NativeID
	return model.RawListing{
		ZPID:        json.Number(zpid),
		HdpURL:      "/homedetails/" + zpid + "_zpid/",
		Price:       json.Number(strconv.FormatFloat(price, 'f', -1, 64)),
		HomeStatus:  status,
		Description: desc,
	}
}

func newEnv(props ...model.Property) (*Refresher, *fakeStore, *fakeProvider, *fakeIndex, *runlock.Registry) {
	st := &fakeStore{props: make(map[string]model.Property)}
	for _, p := range props {
		st.props[p.ID] = p
	}
	pv := &fakeProvider{details: make(map[string]model.RawListing)}
	ix := &fakeIndex{}
	locks := runlock.NewRegistry()
	return New(testConfig(), st, pv, ix, locks), st, pv, ix, locks
}

func TestRefresher_MergesLiveListing(t *testing.T) {
	p := activeProperty("111")
	r, st, pv, _, _ := newEnv(p)
	p.NoResultStreak = 1 // survived one earlier miss
	st.props[p.ID] = p
	pv.details[p.Listing.URL] = detailFor(p, "FOR_SALE",
		"Owner financing available, price reduced.", 140000)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 0, res.Deactivated)

	got := st.props[p.ID]
	assert.True(t, got.Active)
	assert.Equal(t, float64(140000), got.Listing.Price)
	assert.Equal(t, 0, got.NoResultStreak, "streak resets when the listing reappears")
}

func TestRefresher_RetiresOnInactiveStatus(t *testing.T) {
	p := activeProperty("111")
	r, st, pv, ix, _ := newEnv(p)
	pv.details[p.Listing.URL] = detailFor(p, "SOLD", "Owner financing available.", 150000)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)

	got := st.props[p.ID]
	assert.False(t, got.Active)
	assert.Equal(t, "status SOLD", got.InactiveReason)
	assert.Equal(t, []string{p.ID}, ix.deleted)
}

func TestRefresher_RetiresOnZeroPrice(t *testing.T) {
	p := activeProperty("111")
	r, st, pv, _, _ := newEnv(p)
	pv.details[p.Listing.URL] = detailFor(p, "FOR_SALE", "Owner financing available.", 0)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, "zero price", st.props[p.ID].InactiveReason)
}

func TestRefresher_RetiresWhenLanguageRemoved(t *testing.T) {
	p := activeProperty("111")
	r, st, pv, _, _ := newEnv(p)
	pv.details[p.Listing.URL] = detailFor(p, "FOR_SALE",
		"Beautiful move-in ready home.", 150000)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, "owner finance language removed", st.props[p.ID].InactiveReason)
}

func TestRefresher_AgentConfirmedSkipsLanguageCheck(t *testing.T) {
	p := activeProperty("111")
	p.AgentConfirmed = true
	r, st, pv, _, _ := newEnv(p)
	pv.details[p.Listing.URL] = detailFor(p, "FOR_SALE",
		"Beautiful move-in ready home.", 150000)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refreshed)
	assert.True(t, st.props[p.ID].Active)
}

func TestRefresher_MissIncrementsStreak(t *testing.T) {
	p := activeProperty("111")
	r, st, _, _, _ := newEnv(p)
	// Provider returns nothing for this URL.

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.StreakOnly)
	assert.Equal(t, 0, res.Deactivated)

	got := st.props[p.ID]
	assert.True(t, got.Active, "a single miss never deactivates")
	assert.Equal(t, 1, got.NoResultStreak)
}

func TestRefresher_StreakThresholdDeactivates(t *testing.T) {
	p := activeProperty("111")
	p.NoResultStreak = 2
	r, st, _, ix, _ := newEnv(p)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)

	got := st.props[p.ID]
	assert.False(t, got.Active)
	assert.Equal(t, "no provider result", got.InactiveReason)
	assert.Equal(t, []string{p.ID}, ix.deleted)
}

func TestRefresher_SkippedWhenLocked(t *testing.T) {
	r, _, _, _, locks := newEnv(activeProperty("111"))
	ok, _ := locks.TryAcquire(LockName)
	require.True(t, ok)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, res.Scanned)
}

func TestRefresher_BatchSizeCapsScan(t *testing.T) {
	old := activeProperty("111")
	old.LastRefreshed = time.Now().Add(-72 * time.Hour)
	newer := activeProperty("222")
	newer.ID = model.PropertyID("222")
	newer.Listing.NativeID = "222"
	newer.Listing.URL = "https://www.zillow.com/homedetails/222_zpid/"

	r, _, _, _, _ := newEnv(old, newer)
	r.cfg.Refresh.BatchSize = 1

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned, "pass is capped, stalest first")
}
