package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/pkg/alerts"
	"github.com/ownerfi/dealflow/pkg/relay"
)

// fanOut dispatches the persisted batch to the search index, the partner
// relay, cash-deal alerting, and buyer-match triggers. The four branches
// run concurrently and fail independently: every failure lands in the
// metrics and none aborts the run.
func (p *Pipeline) fanOut(ctx context.Context, log *zap.Logger, m *model.RunMetrics, props []model.Property) {
	g, gctx := errgroup.WithContext(ctx)

	// The branches own distinct counter fields but share the error list.
	var errMu sync.Mutex
	addError := func(stage string, err error) {
		errMu.Lock()
		m.AddError(stage, "", "", err)
		errMu.Unlock()
	}

	g.Go(func() error {
		indexed, failed, err := p.index.IndexBatch(gctx, props)
		m.Indexed = indexed
		m.IndexFailed = failed
		if err != nil {
			m.IndexFailed = len(props) - indexed
			addError("index", err)
			log.Warn("pipeline: index sync failed", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		p.relayRegional(gctx, log, m, addError, props)
		return nil
	})

	g.Go(func() error {
		p.alertCashDeals(gctx, log, m, props)
		return nil
	})

	g.Go(func() error {
		for i := range props {
			if !props[i].Classification.IsOwnerFinance {
				continue
			}
			if p.notifier != nil && p.notifier.Enqueue(&props[i]) {
				m.NotifyQueued++
			}
		}
		return nil
	})

	_ = g.Wait()
}

// relayRegional sends the regional subset to the partner relay. When the
// whole batch lands, the properties are re-upserted with relay_sent set so
// refresh runs never re-send them.
func (p *Pipeline) relayRegional(ctx context.Context, log *zap.Logger, m *model.RunMetrics, addError func(string, error), props []model.Property) {
	var regional []model.Property
	for i := range props {
		if props[i].Regional {
			regional = append(regional, props[i])
		}
	}
	if len(regional) == 0 {
		return
	}

	payloads := make([]relay.Payload, len(regional))
	for i := range regional {
		payloads[i] = relay.ToPayload(&regional[i])
	}

	sent, failed, err := p.relay.SendBatch(ctx, payloads, func(done, total, okCount, failCount int) {
		if done == total {
			log.Info("pipeline: relay batch finished",
				zap.Int("sent", okCount), zap.Int("failed", failCount))
		}
	})
	m.Relayed = sent
	m.RelayFailed = failed
	if err != nil {
		addError("relay", err)
		log.Warn("pipeline: relay aborted", zap.Error(err))
		return
	}

	if failed == 0 && sent > 0 {
		for i := range regional {
			regional[i].RelaySent = true
		}
		if _, err := p.store.UpsertBatch(ctx, regional); err != nil {
			log.Warn("pipeline: failed to mark relay_sent", zap.Error(err))
		}
	}
}

// alertCashDeals fires SMS-style alerts for deeply discounted cash deals.
func (p *Pipeline) alertCashDeals(ctx context.Context, log *zap.Logger, m *model.RunMetrics, props []model.Property) {
	var deals []alerts.Deal
	for i := range props {
		c := props[i].Classification
		if !c.IsCashDeal || c.CashDealReason != model.CashReasonDiscount {
			continue
		}
		if c.DiscountPercent < p.cfg.Alerts.MinDiscountPct {
			continue
		}
		deals = append(deals, alerts.Deal{
			StreetAddress: props[i].Listing.StreetAddress,
			AskingPrice:   props[i].Listing.Price,
			Estimate:      props[i].Listing.Estimate,
			ListingURL:    props[i].Listing.URL,
		})
	}
	if len(deals) == 0 {
		return
	}

	sent, failed := p.alerts.SendDeals(ctx, deals)
	m.AlertsSent = sent
	m.AlertsFailed = failed
	if failed > 0 {
		log.Warn("pipeline: some cash-deal alerts failed",
			zap.Int("sent", sent), zap.Int("failed", failed))
	}
}
