package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/risk"
)

func snapshot(total float64, scores map[models.ModuleKey]int) models.RiskSnapshot {
	s := models.RiskSnapshot{ShipmentID: "SHP-K", TotalRisk: total}
	for _, k := range models.ModuleKeys {
		s.Modules = append(s.Modules, models.RiskModule{Key: k, Score: scores[k], Level: models.LevelForScore(scores[k])})
	}
	return s
}

func TestBuild_Derivations(t *testing.T) {
	etd := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s := models.Shipment{
		Cargo: models.Cargo{WeightKg: 1000, ValueUSD: 10000},
		Transport: models.Transport{Mode: "sea", Legs: []models.Leg{
			{Carrier: "ONE", ETD: etd, ETA: etd.AddDate(0, 0, 7), DistanceKm: 5000},
			{Carrier: "ONE", ETD: etd.AddDate(0, 0, 8), ETA: etd.AddDate(0, 0, 10), DistanceKm: 300},
		}},
	}
	snap := snapshot(16.2, map[models.ModuleKey]int{
		models.ModuleDelay: 20, models.ModuleWeather: 10, models.ModuleCongestion: 15,
		models.ModuleCompliance: 10, models.ModulePolitical: 5,
	})

	k := NewBuilder(risk.DefaultTables()).Build(s, snap, 0.84)
	assert.Equal(t, 16, k.RiskScore)
	assert.Equal(t, 9, k.TransitDays)
	assert.Equal(t, 10000.0, k.ShipmentValue)
	assert.InDelta(t, 4.2, k.CarrierRating, 1e-9)
	assert.InDelta(t, 1000*5300*0.015, k.CarbonFootprint, 1e-6)
	assert.InDelta(t, 0.2, k.Probabilities.DelayRisk, 1e-9)
	assert.InDelta(t, 0.8, k.Probabilities.OnTimeProbability, 1e-9)
	assert.InDelta(t, 0.15, k.Probabilities.Congestion, 1e-9)
	assert.InDelta(t, 0.05, k.Probabilities.PoliticalRisk, 1e-9)
	assert.Equal(t, 0.0, k.Probabilities.SecurityRisk)
}

func TestBuild_UnknownModeAndMissingDates(t *testing.T) {
	s := models.Shipment{
		Cargo:     models.Cargo{WeightKg: 10},
		Transport: models.Transport{Mode: "hyperloop", Legs: []models.Leg{{DistanceKm: 100}}},
	}
	k := NewBuilder(risk.DefaultTables()).Build(s, snapshot(0, nil), 0.75)
	assert.Equal(t, 0, k.TransitDays)
	assert.InDelta(t, 100.0, k.CarbonFootprint, 1e-9)
	assert.Equal(t, 1.0, k.Probabilities.OnTimeProbability)
}

func TestBuild_SeededCarrierRating(t *testing.T) {
	s := models.Shipment{
		Transport: models.Transport{Legs: []models.Leg{{Carrier: "MSC"}}},
		KPISeed:   &models.KPI{CarrierRating: 4.9},
	}
	k := NewBuilder(risk.DefaultTables()).Build(s, snapshot(0, nil), 0.5)
	assert.Equal(t, 4.9, k.CarrierRating)

	s.KPISeed.CarrierRating = 0
	k = NewBuilder(risk.DefaultTables()).Build(s, snapshot(0, nil), 0.5)
	assert.Equal(t, 2.5, k.CarrierRating)
}

func TestBuild_NoCarrierRatesZero(t *testing.T) {
	s := models.Shipment{Transport: models.Transport{Mode: "sea", Legs: []models.Leg{{Carrier: models.Unknown, DistanceKm: 10}}}}
	k := NewBuilder(risk.DefaultTables()).Build(s, snapshot(0, nil), 0.75)
	assert.Equal(t, 0.0, k.CarrierRating)

	s.Transport.Legs = nil
	k = NewBuilder(risk.DefaultTables()).Build(s, snapshot(0, nil), 0.75)
	assert.Equal(t, 0.0, k.CarrierRating)
}
