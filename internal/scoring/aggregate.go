// Package scoring folds risk module outputs into a snapshot and explains it with drivers.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
)

// Weights are the first-tier channel weights.
type Weights struct {
	Weather    float64 `yaml:"weather" json:"weather"`
	Congestion float64 `yaml:"congestion" json:"congestion"`
	Carrier    float64 `yaml:"carrier" json:"carrier"`
}

// Config holds aggregation weights and driver thresholds.
type Config struct {
	Weights         Weights
	RollupFactor    float64
	MinDriverImpact float64
	MaxDrivers      int
	LowRiskSilence  float64
	DriverMinLevel  models.Level
	Blocklist       []string
}

// DefaultConfig returns the standard weights and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights:         Weights{Weather: 0.5, Congestion: 0.3, Carrier: 0.2},
		RollupFactor:    0.25,
		MinDriverImpact: 5.0,
		MaxDrivers:      3,
		LowRiskSilence:  30.0,
		DriverMinLevel:  models.LevelMedium,
		Blocklist:       []string{"Unknown", "Other", "Misc", ""},
	}
}

// Rollup names the base channel each secondary module is folded into.
var Rollup = map[models.ModuleKey]models.ModuleKey{
	models.ModulePolitical:  models.ModuleCarrier,
	models.ModuleSecurity:   models.ModuleCarrier,
	models.ModuleCompliance: models.ModuleCongestion,
	models.ModuleDelay:      models.ModuleWeather,
}

// Aggregator turns module scores into a snapshot.
type Aggregator struct {
	cfg Config
}

// New creates an Aggregator for cfg.
func New(cfg Config) *Aggregator {
	if cfg.DriverMinLevel == "" {
		cfg.DriverMinLevel = models.LevelLow
	}
	return &Aggregator{cfg: cfg}
}

func (a *Aggregator) Config() Config { return a.cfg }

func (a *Aggregator) channelWeight(key models.ModuleKey) float64 {
	switch key {
	case models.ModuleWeather:
		return a.cfg.Weights.Weather
	case models.ModuleCongestion:
		return a.cfg.Weights.Congestion
	case models.ModuleCarrier:
		return a.cfg.Weights.Carrier
	}
	return 0
}

// Weight is the effective weight of a module in the total: the channel weight for base
// modules and channel weight times the rollup factor for secondaries.
func (a *Aggregator) Weight(key models.ModuleKey) float64 {
	if base, ok := Rollup[key]; ok {
		return a.channelWeight(base) * a.cfg.RollupFactor
	}
	return a.channelWeight(key)
}

func clamp100(f float64) float64 {
	return math.Max(0, math.Min(100, f))
}

// Aggregate builds the snapshot for one run. Modules are de-duplicated by key, the first
// occurrence wins. The timestamp is normalised to UTC microseconds.
func (a *Aggregator) Aggregate(shipmentID string, modules []models.RiskModule, ts time.Time) (models.RiskSnapshot, error) {
	seen := make(map[models.ModuleKey]bool, len(modules))
	ordered := make([]models.RiskModule, 0, len(modules))
	channels := map[models.ModuleKey]float64{}
	for _, m := range modules {
		if seen[m.Key] || !m.Key.Valid() {
			continue
		}
		seen[m.Key] = true
		ordered = append(ordered, m)

		target := m.Key
		factor := 1.0
		if base, ok := Rollup[m.Key]; ok {
			target, factor = base, a.cfg.RollupFactor
		}
		channels[target] += factor * float64(m.Score)
	}

	snap := models.RiskSnapshot{
		ShipmentID: shipmentID,
		Timestamp:  ts.UTC().Truncate(time.Microsecond),
		Weather:    clamp100(channels[models.ModuleWeather]),
		Congestion: clamp100(channels[models.ModuleCongestion]),
		Carrier:    clamp100(channels[models.ModuleCarrier]),
		Modules:    ordered,
	}
	total := a.cfg.Weights.Weather*snap.Weather +
		a.cfg.Weights.Congestion*snap.Congestion +
		a.cfg.Weights.Carrier*snap.Carrier
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return models.RiskSnapshot{}, apperr.New(apperr.Service, "aggregate risk is not a number")
	}
	snap.TotalRisk = clamp100(total)
	snap.Level = models.LevelForScore(int(math.Round(snap.TotalRisk)))
	snap.Drivers = a.Drivers(ordered, snap.TotalRisk)

	digest, err := Digest(snap)
	if err != nil {
		return models.RiskSnapshot{}, apperr.Wrap(apperr.Service, "snapshot digest", err)
	}
	snap.Digest = digest
	return snap, nil
}

// Digest is the hex SHA-256 of the RFC 8785 canonical JSON of s with the digest blanked.
func Digest(s models.RiskSnapshot) (string, error) {
	s.Digest = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
