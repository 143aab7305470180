package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/geo"
	"github.com/ownerfi/dealflow/internal/monitoring"
	"github.com/ownerfi/dealflow/internal/notify"
	"github.com/ownerfi/dealflow/internal/pipeline"
	"github.com/ownerfi/dealflow/internal/refresh"
	"github.com/ownerfi/dealflow/internal/runlock"
	"github.com/ownerfi/dealflow/internal/store"
	"github.com/ownerfi/dealflow/pkg/alerts"
	"github.com/ownerfi/dealflow/pkg/provider"
	"github.com/ownerfi/dealflow/pkg/relay"
	"github.com/ownerfi/dealflow/pkg/searchindex"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "dealflow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initProvider() provider.Client {
	delayMin, delayMax := cfg.Provider.DelayRange()
	opts := []provider.Option{
		provider.WithRateLimit(cfg.Provider.RatePerSecond),
		provider.WithBatchDelay(delayMin, delayMax),
	}
	if cfg.Provider.BaseURL != "" {
		opts = append(opts, provider.WithBaseURL(cfg.Provider.BaseURL))
	}
	return provider.NewClient(cfg.Provider.APIKey, opts...)
}

// pipelineEnv holds the store, clients, and the pipeline needed by the
// run/refresh/serve commands.
type pipelineEnv struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Refresher *refresh.Refresher
	Notifier  *notify.Notifier
	Matcher   *geo.Matcher
	Locks     *runlock.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Notifier != nil {
		pe.Notifier.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store and all external clients and builds the
// pipeline and refresher. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	providerClient := initProvider()
	indexClient := searchindex.NewClient(cfg.SearchIndex.BaseURL, cfg.SearchIndex.APIKey, cfg.SearchIndex.Collection)
	relayClient := relay.NewClient(cfg.Relay.WebhookURL,
		relay.WithItemDelay(time.Duration(cfg.Relay.DelayMillis)*time.Millisecond))
	alertsClient := alerts.NewClient(cfg.Alerts.WebhookURL, cfg.Alerts.ToNumber)

	notifier := notify.New(cfg.Notify.URL,
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithQueueSize(cfg.Notify.QueueSize),
	)

	// Operator alerter is optional.
	var alerter *monitoring.Alerter
	if cfg.Monitoring.WebhookURL != "" {
		alerter = monitoring.NewAlerter(cfg.Monitoring)
	} else {
		zap.L().Debug("DEALFLOW_MONITORING_WEBHOOK_URL not set, operator alerts disabled")
	}

	geoIndex, err := geo.NewIndex()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load city index")
	}

	matcher := geo.NewMatcher(geoIndex, time.Duration(cfg.Geo.FilterTTLMinutes)*time.Minute)
	locks := runlock.NewRegistry()

	p := pipeline.New(cfg, st, providerClient, indexClient, relayClient, alertsClient, notifier, alerter, geoIndex, locks)
	r := refresh.New(cfg, st, providerClient, indexClient, locks)

	return &pipelineEnv{
		Store:     st,
		Pipeline:  p,
		Refresher: r,
		Notifier:  notifier,
		Matcher:   matcher,
		Locks:     locks,
	}, nil
}
