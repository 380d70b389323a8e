package models

import "time"

// ModuleKey names one of the fixed risk sub-scorers.
type ModuleKey string

const (
	ModuleWeather    ModuleKey = "weather"
	ModuleCongestion ModuleKey = "congestion"
	ModuleCarrier    ModuleKey = "carrier"
	ModulePolitical  ModuleKey = "political"
	ModuleSecurity   ModuleKey = "security"
	ModuleCompliance ModuleKey = "compliance"
	ModuleDelay      ModuleKey = "delay"
)

// ModuleKeys lists the registry in evaluation order.
var ModuleKeys = []ModuleKey{
	ModuleWeather,
	ModuleCongestion,
	ModuleCarrier,
	ModulePolitical,
	ModuleSecurity,
	ModuleCompliance,
	ModuleDelay,
}

func (k ModuleKey) Valid() bool {
	for _, m := range ModuleKeys {
		if m == k {
			return true
		}
	}
	return false
}

// Level is the qualitative band of a score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// LevelForScore maps a 0-100 score onto the qualitative bands.
func LevelForScore(score int) Level {
	switch {
	case score <= 25:
		return LevelLow
	case score <= 55:
		return LevelMedium
	case score <= 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Rank orders levels; unrecognised levels rank below LOW.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

func (l Level) Valid() bool { return l.Rank() > 0 }

// RiskModule is the output of one sub-scorer.
type RiskModule struct {
	Key     ModuleKey `json:"key"`
	Title   string    `json:"title"`
	Score   int       `json:"score"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// RiskDriver is a significant, human-named contributor to the total risk.
type RiskDriver struct {
	Name        string    `json:"name"`
	Module      ModuleKey `json:"module"`
	Impact      float64   `json:"impact"`
	Description string    `json:"description,omitempty"`
}

// RiskSnapshot is the aggregated result of one scoring run. It is never mutated after
// the pipeline hands it to the envelope.
type RiskSnapshot struct {
	ShipmentID string       `json:"shipmentId"`
	Timestamp  time.Time    `json:"timestamp"`
	Weather    float64      `json:"weather"`
	Congestion float64      `json:"congestion"`
	Carrier    float64      `json:"carrier"`
	TotalRisk  float64      `json:"totalRisk"`
	Level      Level        `json:"level"`
	Modules    []RiskModule `json:"modules"`
	Drivers    []RiskDriver `json:"drivers"`
	Digest     string       `json:"digest,omitempty"`
}

// Module returns the module output for key, or a zero LOW module.
func (s RiskSnapshot) Module(key ModuleKey) RiskModule {
	for _, m := range s.Modules {
		if m.Key == key {
			return m
		}
	}
	return RiskModule{Key: key, Level: LevelLow}
}
