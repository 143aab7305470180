// Package refresh re-checks active properties against the provider and
// retires the ones that are no longer live deals. It runs as its own
// collaborator process, separate from ingestion, under its own lock.
package refresh

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/classify"
	"github.com/ownerfi/dealflow/internal/config"
	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/runlock"
	"github.com/ownerfi/dealflow/internal/store"
	"github.com/ownerfi/dealflow/internal/transform"
	"github.com/ownerfi/dealflow/pkg/provider"
	"github.com/ownerfi/dealflow/pkg/searchindex"
)

// LockName keys the refresh run lock, independent of the ingestion lock.
const LockName = "refresh"

// inactiveStatuses are provider statuses that retire a listing immediately.
var inactiveStatuses = map[string]bool{
	"PENDING":       true,
	"SOLD":          true,
	"RECENTLY_SOLD": true,
	"OFF_MARKET":    true,
	"FOR_RENT":      true,
	"CONTINGENT":    true,
	"OTHER":         true,
	"UNKNOWN":       true,
}

// Result reports what one refresh pass did.
type Result struct {
	Skipped     bool
	Scanned     int
	Refreshed   int
	Deactivated int
	StreakOnly  int
	Errors      int
	Duration    time.Duration
}

// Refresher re-checks active properties.
type Refresher struct {
	cfg      *config.Config
	store    store.Store
	provider provider.Client
	index    searchindex.Client
	locks    *runlock.Registry
}

// New creates a Refresher.
func New(cfg *config.Config, st store.Store, providerClient provider.Client, indexClient searchindex.Client, locks *runlock.Registry) *Refresher {
	return &Refresher{
		cfg:      cfg,
		store:    st,
		provider: providerClient,
		index:    indexClient,
		locks:    locks,
	}
}

// Run scans the stalest active properties, re-fetches their detail records,
// and merges or retires each one. The pass is capped per invocation; daily
// runs work through the backlog oldest first.
func (r *Refresher) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	ok, heldFor := r.locks.TryAcquire(LockName)
	if !ok {
		res.Skipped = true
		zap.L().Warn("refresh: run skipped, lock held", zap.Duration("held_for", heldFor))
		return res, nil
	}
	defer r.locks.Release(LockName)

	props, err := r.store.ListActive(ctx, r.cfg.Refresh.BatchSize)
	if err != nil {
		return res, err
	}
	res.Scanned = len(props)
	if len(props) == 0 {
		return res, nil
	}

	urls := make([]string, len(props))
	for i := range props {
		urls[i] = props[i].Listing.URL
	}

	details, err := r.provider.Details(ctx, urls)
	if err != nil {
		return res, err
	}

	byID := make(map[string]model.Listing, len(details))
	for i := range details {
		l := transform.Normalize(&details[i])
		if l.NativeID != "" {
			byID[l.NativeID] = l
		}
	}

	for i := range props {
		if err := r.refreshOne(ctx, res, &props[i], byID); err != nil {
			res.Errors++
			zap.L().Warn("refresh: property update failed",
				zap.String("id", props[i].ID), zap.Error(err))
		}
	}

	zap.L().Info("refresh: pass complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("deactivated", res.Deactivated),
		zap.Int("streak_only", res.StreakOnly))
	return res, nil
}

func (r *Refresher) refreshOne(ctx context.Context, res *Result, p *model.Property, byID map[string]model.Listing) error {
	fresh, found := byID[p.Listing.NativeID]
	if !found {
		return r.recordMiss(ctx, res, p)
	}

	if reason := retireReason(p, fresh); reason != "" {
		return r.deactivate(ctx, res, p, reason)
	}

	merge(p, fresh)
	if err := r.store.UpdateRefresh(ctx, p); err != nil {
		return err
	}
	res.Refreshed++
	return nil
}

// recordMiss bumps the no-result streak and retires the property once the
// streak crosses the configured threshold. A single provider miss is noise,
// not a verdict.
func (r *Refresher) recordMiss(ctx context.Context, res *Result, p *model.Property) error {
	p.NoResultStreak++
	if p.NoResultStreak >= r.cfg.Refresh.MaxNoResultStreak {
		return r.deactivate(ctx, res, p, "no provider result")
	}
	if err := r.store.UpdateRefresh(ctx, p); err != nil {
		return err
	}
	res.StreakOnly++
	return nil
}

// retireReason decides whether a re-fetched listing should retire the
// property. Empty means it stays active.
func retireReason(p *model.Property, fresh model.Listing) string {
	if inactiveStatuses[fresh.HomeStatus] {
		return "status " + fresh.HomeStatus
	}
	if fresh.Price <= 0 {
		return "zero price"
	}
	if p.Classification.IsOwnerFinance && !p.AgentConfirmed {
		if of := classify.DetectOwnerFinance(fresh.Description); !of.Qualifies {
			return "owner finance language removed"
		}
	}
	return ""
}

func (r *Refresher) deactivate(ctx context.Context, res *Result, p *model.Property, reason string) error {
	if err := r.store.MarkInactive(ctx, p.ID, reason); err != nil {
		return err
	}
	if err := r.index.Delete(ctx, p.ID); err != nil {
		zap.L().Warn("refresh: index delete failed",
			zap.String("id", p.ID), zap.Error(err))
	}
	res.Deactivated++
	zap.L().Info("refresh: property deactivated",
		zap.String("id", p.ID), zap.String("reason", reason))
	return nil
}

// merge applies the re-fetched listing onto the stored property, keeping
// bookkeeping and classification and resetting the miss streak.
func merge(p *model.Property, fresh model.Listing) {
	p.Listing.Price = fresh.Price
	p.Listing.Estimate = fresh.Estimate
	p.Listing.RentEstimate = fresh.RentEstimate
	p.Listing.HomeStatus = fresh.HomeStatus
	p.Listing.DaysOnMarket = fresh.DaysOnMarket
	if fresh.Description != "" {
		p.Listing.Description = fresh.Description
	}
	if len(fresh.Images) > 0 {
		p.Listing.Images = fresh.Images
		p.Listing.FirstImage = fresh.FirstImage
		p.Listing.PhotoCount = fresh.PhotoCount
	}
	p.NoResultStreak = 0
	p.InactiveReason = ""
}
