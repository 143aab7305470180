// Package pipeline orchestrates a full ingestion run: provider search,
// duplicate filtering, detail fetch, normalization and classification,
// persistence, and fan-out to the search index, relay, alert, and
// buyer-match channels.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/config"
	"github.com/ownerfi/dealflow/internal/geo"
	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/monitoring"
	"github.com/ownerfi/dealflow/internal/notify"
	"github.com/ownerfi/dealflow/internal/runlock"
	"github.com/ownerfi/dealflow/internal/store"
	"github.com/ownerfi/dealflow/pkg/alerts"
	"github.com/ownerfi/dealflow/pkg/provider"
	"github.com/ownerfi/dealflow/pkg/relay"
	"github.com/ownerfi/dealflow/pkg/searchindex"
)

// LockName keys the ingestion run lock. Refresh uses its own key so the
// two collaborators can overlap.
const LockName = "ingest"

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	provider provider.Client
	index    searchindex.Client
	relay    relay.Client
	alerts   alerts.Client
	notifier *notify.Notifier
	alerter  *monitoring.Alerter
	geoIndex *geo.Index
	locks    *runlock.Registry
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	providerClient provider.Client,
	indexClient searchindex.Client,
	relayClient relay.Client,
	alertsClient alerts.Client,
	notifier *notify.Notifier,
	alerter *monitoring.Alerter,
	geoIndex *geo.Index,
	locks *runlock.Registry,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		provider: providerClient,
		index:    indexClient,
		relay:    relayClient,
		alerts:   alertsClient,
		notifier: notifier,
		alerter:  alerter,
		geoIndex: geoIndex,
		locks:    locks,
	}
}

// Run executes one full ingestion run. A summary is always returned, even
// when the run is skipped by the lock or fails fatally.
func (p *Pipeline) Run(ctx context.Context) *model.RunSummary {
	sum := &model.RunSummary{
		RunID:   uuid.NewString(),
		Status:  model.RunStatusRunning,
		Started: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", sum.RunID))

	ok, heldFor := p.locks.TryAcquire(LockName)
	if !ok {
		sum.Status = model.RunStatusSkipped
		sum.Skipped = true
		sum.Message = "run already in progress"
		log.Warn("pipeline: run skipped, lock held",
			zap.Duration("held_for", heldFor))
		p.finish(ctx, sum)
		return sum
	}
	defer p.locks.Release(LockName)

	log.Info("pipeline: run starting",
		zap.Int("searches", len(p.cfg.Provider.Searches)))

	if err := p.run(ctx, log, sum); err != nil {
		sum.Status = model.RunStatusFailed
		sum.Error = err.Error()
		sum.Message = "run failed"
		log.Error("pipeline: run failed", zap.Error(err))
	} else {
		sum.Status = model.RunStatusComplete
		sum.Message = "run complete"
		log.Info("pipeline: run complete",
			zap.Int("found", sum.Metrics.Found),
			zap.Int("duplicates", sum.Metrics.Duplicates),
			zap.Int("persisted", sum.Metrics.Persisted))
	}

	p.finish(ctx, sum)
	return sum
}

// run walks the ordered stages. Only store-unreachable and provider
// total-failure errors escape; everything else degrades into metrics.
func (p *Pipeline) run(ctx context.Context, log *zap.Logger, sum *model.RunSummary) error {
	m := &sum.Metrics

	found := p.search(ctx, log, m)
	if len(found) == 0 {
		return nil
	}

	fresh, err := p.dedupe(ctx, log, m, found)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}

	details, err := p.fetchDetails(ctx, log, m, fresh)
	if err != nil {
		return err
	}

	props := p.process(log, m, details)
	if len(props) == 0 {
		return nil
	}

	n, err := p.store.UpsertBatch(ctx, props)
	m.Persisted += n
	if err != nil {
		m.AddError("persist", "", "", err)
		log.Warn("pipeline: persistence incomplete",
			zap.Int("written", n), zap.Error(err))
	}

	p.fanOut(ctx, log, m, props)
	return nil
}

// finish persists the summary and raises operator alerts. Both are best
// effort and never alter the run outcome.
func (p *Pipeline) finish(ctx context.Context, sum *model.RunSummary) {
	sum.Duration = time.Since(sum.Started)

	if err := p.store.SaveRunSummary(ctx, sum); err != nil {
		zap.L().Warn("pipeline: failed to save run summary",
			zap.String("run_id", sum.RunID), zap.Error(err))
	}
	if p.alerter != nil {
		p.alerter.SendAlerts(ctx, p.alerter.Evaluate(sum))
	}
}
