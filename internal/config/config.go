package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Provider    ProviderConfig    `yaml:"provider" mapstructure:"provider"`
	SearchIndex SearchIndexConfig `yaml:"search_index" mapstructure:"search_index"`
	Relay       RelayConfig       `yaml:"relay" mapstructure:"relay"`
	Alerts      AlertsConfig      `yaml:"alerts" mapstructure:"alerts"`
	Notify      NotifyConfig      `yaml:"notify" mapstructure:"notify"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Geo         GeoConfig         `yaml:"geo" mapstructure:"geo"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Refresh     RefreshConfig     `yaml:"refresh" mapstructure:"refresh"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig describes a single saved provider search.
type SearchConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	URL        string `yaml:"url" mapstructure:"url"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// ProviderConfig configures the listing data provider.
type ProviderConfig struct {
	BaseURL       string         `yaml:"base_url" mapstructure:"base_url"`
	APIKey        string         `yaml:"api_key" mapstructure:"api_key"`
	RatePerSecond float64        `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	DelayMinSecs  int            `yaml:"delay_min_secs" mapstructure:"delay_min_secs"`
	DelayMaxSecs  int            `yaml:"delay_max_secs" mapstructure:"delay_max_secs"`
	Searches      []SearchConfig `yaml:"searches" mapstructure:"searches"`
}

// SearchIndexConfig configures the document search index.
type SearchIndexConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// RelayConfig configures downstream CRM delivery.
type RelayConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	DelayMillis int    `yaml:"delay_millis" mapstructure:"delay_millis"`
}

// AlertsConfig configures cash-deal alert delivery.
type AlertsConfig struct {
	WebhookURL     string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ToNumber       string  `yaml:"to_number" mapstructure:"to_number"`
	MinDiscountPct float64 `yaml:"min_discount_pct" mapstructure:"min_discount_pct"`
}

// NotifyConfig configures buyer-match trigger dispatch.
type NotifyConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
	QueueSize int    `yaml:"queue_size" mapstructure:"queue_size"`
}

// MonitoringConfig configures operator alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// GeoConfig configures radius matching.
type GeoConfig struct {
	NearbyRadiusMiles float64 `yaml:"nearby_radius_miles" mapstructure:"nearby_radius_miles"`
	MaxNearbyCities   int     `yaml:"max_nearby_cities" mapstructure:"max_nearby_cities"`
	FilterTTLMinutes  int     `yaml:"filter_ttl_minutes" mapstructure:"filter_ttl_minutes"`
}

// PipelineConfig configures a single ingestion run.
type PipelineConfig struct {
	DetailCap       int      `yaml:"detail_cap" mapstructure:"detail_cap"`
	RegionalStates  []string `yaml:"regional_states" mapstructure:"regional_states"`
	UseEstimatedTax bool     `yaml:"use_estimated_tax" mapstructure:"use_estimated_tax"`
}

// RefreshConfig configures the status refresh collaborator.
type RefreshConfig struct {
	BatchSize         int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxNoResultStreak int `yaml:"max_no_result_streak" mapstructure:"max_no_result_streak"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DelayRange returns the provider inter-batch delay bounds as durations.
func (p ProviderConfig) DelayRange() (time.Duration, time.Duration) {
	return time.Duration(p.DelayMinSecs) * time.Second,
		time.Duration(p.DelayMaxSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.rate_per_second", 2)
	v.SetDefault("provider.delay_min_secs", 1)
	v.SetDefault("provider.delay_max_secs", 3)
	v.SetDefault("search_index.collection", "properties")
	v.SetDefault("relay.delay_millis", 500)
	v.SetDefault("alerts.min_discount_pct", 20)
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("geo.nearby_radius_miles", 35)
	v.SetDefault("geo.max_nearby_cities", 100)
	v.SetDefault("geo.filter_ttl_minutes", 60)
	v.SetDefault("pipeline.detail_cap", 500)
	v.SetDefault("pipeline.regional_states", []string{"AR", "TN"})
	v.SetDefault("pipeline.use_estimated_tax", true)
	v.SetDefault("refresh.batch_size", 200)
	v.SetDefault("refresh.max_no_result_streak", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
