package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/scoring"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	require.NoError(t, err)

	sc := cfg.ScoringConfig()
	assert.Equal(t, scoring.Weights{Weather: 0.5, Congestion: 0.3, Carrier: 0.2}, sc.Weights)
	assert.Equal(t, 5.0, sc.MinDriverImpact)
	assert.Equal(t, 3, sc.MaxDrivers)
	assert.Equal(t, 30.0, sc.LowRiskSilence)
	assert.Equal(t, models.LevelMedium, sc.DriverMinLevel)

	pc := cfg.PricingConfig()
	assert.Equal(t, 0.25, pc.Alpha)
	assert.Equal(t, 1.0, pc.Beta)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, uint(4), cfg.Retry.MaxTries)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "risk-snapshots", cfg.Kafka.SnapshotsTopic)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
scoring:
  max_drivers: 2
  driver_min_level: high
rates:
  poll_interval: 30s
  static:
    - carrier: MSC
      origin: CNSHA
      destination: USLAX
      base_freight: 2100
      currency: USD
log_level: debug
`), 0o600))

	cfg, err := LoadFrom(path, env(map[string]string{
		"MAX_DRIVERS":        "1",
		"KAFKA_BROKERS":      "k1:9092, k2:9092",
		"AGG_WEIGHTS":        `{"weather": 0.6, "congestion": 0.2, "carrier": 0.2}`,
		"RISK_PREMIUM_ALPHA": "0.3",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 1, cfg.Scoring.MaxDrivers)
	assert.Equal(t, "HIGH", cfg.Scoring.DriverMinLevel)
	assert.Equal(t, 30*time.Second, cfg.Rates.PollInterval)
	require.Len(t, cfg.Rates.Static, 1)
	assert.Equal(t, "MSC", cfg.Rates.Static[0]["carrier"])
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0.6, cfg.Scoring.Weights.Weather)
	assert.Equal(t, 0.3, cfg.PricingConfig().Alpha)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Rejects(t *testing.T) {
	_, err := LoadFrom("", env(map[string]string{"MIN_DRIVER_IMPACT": "five"}))
	assert.ErrorContains(t, err, "MIN_DRIVER_IMPACT")

	_, err = LoadFrom("", env(map[string]string{"DRIVER_MIN_LEVEL": "severe"}))
	assert.ErrorContains(t, err, "driver_min_level")

	_, err = LoadFrom("", env(map[string]string{"AGG_WEIGHTS": "{weather: -1}"}))
	assert.ErrorContains(t, err, "non-negative")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring: [unclosed"), 0o600))
	_, err = LoadFrom(path, env(nil))
	assert.Error(t, err)
}

func TestLoad_PartialWeightsKeepDefaults(t *testing.T) {
	cfg, err := LoadFrom("", env(map[string]string{"AGG_WEIGHTS": "{weather: 0.6}"}))
	require.NoError(t, err)
	assert.Equal(t, scoring.Weights{Weather: 0.6, Congestion: 0.3, Carrier: 0.2}, cfg.Scoring.Weights)
}

func TestLoad_RejectsNonPositiveIntervals(t *testing.T) {
	for name, body := range map[string]string{
		"poll_interval": "rates:\n  service_url: http://rates\n  poll_interval: 0s\n",
		"multiplier":    "retry:\n  multiplier: 0\n",
		"initial":       "retry:\n  initial_interval: -1s\n",
	} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadFrom(path, env(nil))
		assert.Error(t, err, name)
	}
}
