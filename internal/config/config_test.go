package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 2, cfg.Provider.RatePerSecond, 0.001)
	assert.Equal(t, 1, cfg.Provider.DelayMinSecs)
	assert.Equal(t, 3, cfg.Provider.DelayMaxSecs)
	assert.Equal(t, "properties", cfg.SearchIndex.Collection)
	assert.Equal(t, 500, cfg.Relay.DelayMillis)
	assert.InDelta(t, 20, cfg.Alerts.MinDiscountPct, 0.001)
	assert.Equal(t, 4, cfg.Notify.Workers)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 35, cfg.Geo.NearbyRadiusMiles, 0.001)
	assert.Equal(t, 100, cfg.Geo.MaxNearbyCities)
	assert.Equal(t, 500, cfg.Pipeline.DetailCap)
	assert.Equal(t, []string{"AR", "TN"}, cfg.Pipeline.RegionalStates)
	assert.True(t, cfg.Pipeline.UseEstimatedTax)
	assert.Equal(t, 200, cfg.Refresh.BatchSize)
	assert.Equal(t, 3, cfg.Refresh.MaxNoResultStreak)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
provider:
  base_url: https://scraper.example.com
  delay_min_secs: 2
  searches:
    - name: memphis-of
      url: https://www.zillow.com/memphis-tn/
      max_results: 250
refresh:
  max_no_result_streak: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://scraper.example.com", cfg.Provider.BaseURL)
	require.Len(t, cfg.Provider.Searches, 1)
	assert.Equal(t, "memphis-of", cfg.Provider.Searches[0].Name)
	assert.Equal(t, 250, cfg.Provider.Searches[0].MaxResults)
	assert.Equal(t, 5, cfg.Refresh.MaxNoResultStreak)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Provider.DelayMinSecs)
	assert.Equal(t, 500, cfg.Pipeline.DetailCap)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEALFLOW_STORE_DRIVER", "postgres")
	t.Setenv("DEALFLOW_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("DEALFLOW_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestProviderDelayRange(t *testing.T) {
	p := ProviderConfig{DelayMinSecs: 1, DelayMaxSecs: 3}
	lo, hi := p.DelayRange()
	assert.Equal(t, time.Second, lo)
	assert.Equal(t, 3*time.Second, hi)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
