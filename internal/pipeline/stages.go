package pipeline

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/classify"
	"github.com/ownerfi/dealflow/internal/finance"
	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/transform"
	"github.com/ownerfi/dealflow/pkg/provider"
)

var errMissingID = eris.New("detail record has no native identifier")

// candidate is a search result reduced to what dedup and detail fetch need.
type candidate struct {
	id  string
	url string
}

// search runs every configured saved search. A failed search is counted
// and skipped; the run continues with the remaining searches.
func (p *Pipeline) search(ctx context.Context, log *zap.Logger, m *model.RunMetrics) []candidate {
	var found []candidate
	seen := make(map[string]bool)

	for _, sc := range p.cfg.Provider.Searches {
		raws, err := p.provider.Search(ctx, provider.SearchQuery{
			Name:       sc.Name,
			URL:        sc.URL,
			MaxResults: sc.MaxResults,
		})
		if err != nil {
			m.AddError("search", "", sc.Name, err)
			log.Warn("pipeline: search failed",
				zap.String("search", sc.Name), zap.Error(err))
			continue
		}
		m.SearchesRun++
		if m.FoundBySearch == nil {
			m.FoundBySearch = make(map[string]int)
		}
		m.FoundBySearch[sc.Name] = len(raws)

		for i := range raws {
			l := transform.Normalize(&raws[i])
			if l.NativeID == "" || seen[l.NativeID] {
				continue
			}
			seen[l.NativeID] = true
			m.Found++
			found = append(found, candidate{id: l.NativeID, url: l.URL})
		}
	}
	return found
}

// dedupe drops candidates already present in the store. A failed lookup
// batch leaves its candidates in (they are re-fetched and merge-upserted),
// so the filter errs toward reprocessing rather than data loss.
func (p *Pipeline) dedupe(ctx context.Context, log *zap.Logger, m *model.RunMetrics, found []candidate) ([]candidate, error) {
	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = model.PropertyID(c.id)
	}

	known, lookupErrors, err := p.store.FilterKnown(ctx, ids)
	if err != nil {
		return nil, err
	}
	m.LookupErrors += lookupErrors

	fresh := make([]candidate, 0, len(found))
	for _, c := range found {
		if known[model.PropertyID(c.id)] {
			m.Duplicates++
			continue
		}
		fresh = append(fresh, c)
	}

	if limit := p.cfg.Pipeline.DetailCap; limit > 0 && len(fresh) > limit {
		log.Info("pipeline: capping detail fetch",
			zap.Int("fresh", len(fresh)), zap.Int("cap", limit))
		fresh = fresh[:limit]
	}
	return fresh, nil
}

func (p *Pipeline) fetchDetails(ctx context.Context, log *zap.Logger, m *model.RunMetrics, fresh []candidate) ([]model.RawListing, error) {
	urls := make([]string, 0, len(fresh))
	for _, c := range fresh {
		if c.url != "" {
			urls = append(urls, c.url)
		}
	}

	details, err := p.provider.Details(ctx, urls)
	if err != nil {
		return nil, err
	}
	m.Detailed = len(details)
	log.Info("pipeline: detail fetch complete",
		zap.Int("requested", len(urls)), zap.Int("returned", len(details)))
	return details, nil
}

// process turns raw detail records into persistable properties. Every
// discard path is counted; nothing here returns an error.
func (p *Pipeline) process(log *zap.Logger, m *model.RunMetrics, details []model.RawListing) []model.Property {
	var props []model.Property

	for i := range details {
		l := transform.Normalize(&details[i])
		if l.NativeID == "" {
			m.TransformFailed++
			m.AddError("transform", "", l.FullAddress, errMissingID)
			continue
		}
		if err := transform.Validate(&l); err != nil {
			m.ValidationFailed++
			m.AddError("validate", l.NativeID, l.FullAddress, err)
			continue
		}
		m.Transformed++

		c := classify.Classify(l.Description, l.Price, l.Estimate)
		if !c.Matched() {
			m.FilteredOut++
			continue
		}
		switch {
		case c.IsOwnerFinance && c.IsCashDeal:
			m.Both++
			m.OwnerFinance++
			m.CashDeal++
		case c.IsOwnerFinance:
			m.OwnerFinance++
		default:
			m.CashDeal++
		}

		props = append(props, model.Property{
			ID:             model.PropertyID(l.NativeID),
			Listing:        l,
			Classification: c,
			Metrics: finance.Compute(l.Price, l.RentEstimate, l.AnnualTax,
				l.MonthlyHOA, p.cfg.Pipeline.UseEstimatedTax),
			NearbyCities: p.geoIndex.NearbyCityNames(l.City, l.State,
				p.cfg.Geo.NearbyRadiusMiles, p.cfg.Geo.MaxNearbyCities),
			Active:   true,
			Regional: slices.Contains(p.cfg.Pipeline.RegionalStates, l.State),
		})
	}

	log.Info("pipeline: processing complete",
		zap.Int("qualified", len(props)),
		zap.Int("filtered_out", m.FilteredOut),
		zap.Int("validation_failed", m.ValidationFailed))
	return props
}
