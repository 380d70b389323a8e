package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/pricing"
	"github.com/refset/freight-risk-quoting/internal/scoring"
)

// Config holds all service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Rates    RatesConfig    `yaml:"rates"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Retry    RetryConfig    `yaml:"retry"`
	LogLevel string         `yaml:"log_level"`
}

// HTTPConfig configures the API listener and its per-IP rate limit.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store. An empty URL keeps runs in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// KafkaConfig enables event publication when Brokers is non-empty.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	SnapshotsTopic string   `yaml:"snapshots_topic"`
	QuotesTopic    string   `yaml:"quotes_topic"`
}

// RedisConfig enables the Redis reliability source when Addr is set.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	ReliabilityKey string `yaml:"reliability_key"`
}

// RatesConfig configures the rate candidate source. With ServiceURL set, the rate
// service is polled; otherwise the static table is served.
type RatesConfig struct {
	ServiceURL   string           `yaml:"service_url"`
	PollInterval time.Duration    `yaml:"poll_interval"`
	Static       []map[string]any `yaml:"static"`
}

// ScoringConfig holds aggregation weights and driver selection thresholds.
type ScoringConfig struct {
	Weights         scoring.Weights `yaml:"agg_weights"`
	RollupFactor    float64         `yaml:"rollup_factor"`
	MinDriverImpact float64         `yaml:"min_driver_impact"`
	MaxDrivers      int             `yaml:"max_drivers"`
	LowRiskSilence  float64         `yaml:"low_risk_silence"`
	DriverMinLevel  string          `yaml:"driver_min_level"`
}

// PricingConfig holds the risk premium coefficients.
type PricingConfig struct {
	RiskPremiumAlpha float64 `yaml:"risk_premium_alpha"`
	InsuranceBeta    float64 `yaml:"insurance_beta"`
	MaxAlternatives  int     `yaml:"max_alternatives"`
}

// RetryConfig is the backoff policy for transient reads.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	MaxTries        uint          `yaml:"max_tries"`
}

// Default returns the configuration used when no file or environment overrides it.
func Default() *Config {
	sc, pc := scoring.DefaultConfig(), pricing.DefaultConfig()
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{
			SnapshotsTopic: "risk-snapshots",
			QuotesTopic:    "freight-quotes",
		},
		Redis: RedisConfig{
			ReliabilityKey: "carrier:reliability",
		},
		Rates: RatesConfig{
			PollInterval: time.Minute,
		},
		Scoring: ScoringConfig{
			Weights:         sc.Weights,
			RollupFactor:    sc.RollupFactor,
			MinDriverImpact: sc.MinDriverImpact,
			MaxDrivers:      sc.MaxDrivers,
			LowRiskSilence:  sc.LowRiskSilence,
			DriverMinLevel:  string(sc.DriverMinLevel),
		},
		Pricing: PricingConfig{
			RiskPremiumAlpha: pc.Alpha,
			InsuranceBeta:    pc.Beta,
			MaxAlternatives:  pc.MaxAlternatives,
		},
		Retry: RetryConfig{
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      4,
			MaxTries:        4,
		},
		LogLevel: "info",
	}
}

// Load reads config.yaml from the working directory, if present, then applies
// environment overrides.
func Load() (*Config, error) {
	return LoadFrom("config.yaml", os.Getenv)
}

// LoadFrom layers defaults, the YAML file at path (if it exists) and environment
// variables read through getenv, then validates the result.
func LoadFrom(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	float := func(key string, dst *float64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	float("RATE_LIMIT", &cfg.HTTP.RateLimit)
	str("DATABASE_URL", &cfg.Database.URL)
	if v := getenv("KAFKA_BROKERS"); strings.TrimSpace(v) != "" {
		cfg.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	str("KAFKA_SNAPSHOTS_TOPIC", &cfg.Kafka.SnapshotsTopic)
	str("KAFKA_QUOTES_TOPIC", &cfg.Kafka.QuotesTopic)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("RATE_SERVICE_URL", &cfg.Rates.ServiceURL)
	str("LOG_LEVEL", &cfg.LogLevel)

	float("MIN_DRIVER_IMPACT", &cfg.Scoring.MinDriverImpact)
	integer("MAX_DRIVERS", &cfg.Scoring.MaxDrivers)
	float("LOW_RISK_SILENCE", &cfg.Scoring.LowRiskSilence)
	str("DRIVER_MIN_LEVEL", &cfg.Scoring.DriverMinLevel)
	float("RISK_PREMIUM_ALPHA", &cfg.Pricing.RiskPremiumAlpha)
	float("INSURANCE_BETA", &cfg.Pricing.InsuranceBeta)

	// AGG_WEIGHTS accepts a YAML or JSON mapping, e.g. {weather: 0.6, congestion: 0.2, carrier: 0.2}.
	if v := strings.TrimSpace(getenv("AGG_WEIGHTS")); v != "" {
		w := cfg.Scoring.Weights
		if err := yaml.Unmarshal([]byte(v), &w); err != nil {
			errs = append(errs, fmt.Errorf("AGG_WEIGHTS: %w", err))
		} else {
			cfg.Scoring.Weights = w
		}
	}
	return errors.Join(errs...)
}

// Validate rejects settings the pipeline cannot run with. It also normalizes
// driver_min_level to upper case.
func (c *Config) Validate() error {
	var errs []error
	w := c.Scoring.Weights
	if w.Weather < 0 || w.Congestion < 0 || w.Carrier < 0 {
		errs = append(errs, errors.New("agg_weights must be non-negative"))
	}
	if c.Scoring.MaxDrivers < 0 {
		errs = append(errs, errors.New("max_drivers must be >= 0"))
	}
	c.Scoring.DriverMinLevel = strings.ToUpper(strings.TrimSpace(c.Scoring.DriverMinLevel))
	if !models.Level(c.Scoring.DriverMinLevel).Valid() {
		errs = append(errs, fmt.Errorf("driver_min_level %q is not a risk level", c.Scoring.DriverMinLevel))
	}
	if c.Pricing.RiskPremiumAlpha < 0 || c.Pricing.InsuranceBeta < 0 {
		errs = append(errs, errors.New("risk_premium_alpha and insurance_beta must be non-negative"))
	}
	if c.Retry.MaxTries == 0 {
		errs = append(errs, errors.New("retry.max_tries must be >= 1"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry.multiplier must be >= 1"))
	}
	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, errors.New("retry.initial_interval must be positive"))
	}
	if c.Rates.PollInterval <= 0 {
		errs = append(errs, errors.New("rates.poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

// ScoringConfig projects the scoring section onto the aggregator's config.
func (c *Config) ScoringConfig() scoring.Config {
	sc := scoring.DefaultConfig()
	sc.Weights = c.Scoring.Weights
	sc.RollupFactor = c.Scoring.RollupFactor
	sc.MinDriverImpact = c.Scoring.MinDriverImpact
	sc.MaxDrivers = c.Scoring.MaxDrivers
	sc.LowRiskSilence = c.Scoring.LowRiskSilence
	sc.DriverMinLevel = models.Level(c.Scoring.DriverMinLevel)
	return sc
}

// PricingConfig projects the pricing section onto the pricing engine's config.
func (c *Config) PricingConfig() pricing.Config {
	return pricing.Config{
		Alpha:           c.Pricing.RiskPremiumAlpha,
		Beta:            c.Pricing.InsuranceBeta,
		MaxAlternatives: c.Pricing.MaxAlternatives,
	}
}
