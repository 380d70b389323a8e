// Package kpi derives shipment KPIs from a shipment and its risk snapshot.
package kpi

import (
	"math"

	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/risk"
	"github.com/refset/freight-risk-quoting/internal/validate"
)

// Builder derives KPIs using the shared reference tables.
type Builder struct {
	tables *risk.Tables
}

// NewBuilder returns a Builder over tables.
func NewBuilder(tables *risk.Tables) *Builder {
	return &Builder{tables: tables}
}

func ratio(m models.RiskModule) float64 { return float64(m.Score) / 100 }

// Build maps shipment and snapshot onto KPIs. Carbon footprint is
// weight(kg) x distance(km) x mode factor, which reads as grams of CO2e.
// A shipment without a carrier rates 0 stars. A positive seeded carrier rating
// replaces the one derived from reliability.
func (b *Builder) Build(s models.Shipment, snap models.RiskSnapshot, reliability float64) models.KPI {
	delay := ratio(snap.Module(models.ModuleDelay))
	rating := reliability * validate.MaxCarrierRating
	if s.Transport.PrimaryCarrier() == "" {
		rating = 0
	}
	k := models.KPI{
		RiskScore:       int(math.Round(snap.TotalRisk)),
		TransitDays:     s.Transport.TransitDays(),
		ShipmentValue:   s.Cargo.ValueUSD,
		CarrierRating:   rating,
		CarbonFootprint: s.Cargo.WeightKg * s.Transport.DistanceKm() * b.tables.ModeFactor(s.Transport.Mode),
		Probabilities: models.Probabilities{
			DelayRisk:         delay,
			OnTimeProbability: 1 - delay,
			Compliance:        ratio(snap.Module(models.ModuleCompliance)),
			Congestion:        ratio(snap.Module(models.ModuleCongestion)),
			WeatherImpact:     ratio(snap.Module(models.ModuleWeather)),
			PoliticalRisk:     ratio(snap.Module(models.ModulePolitical)),
			SecurityRisk:      ratio(snap.Module(models.ModuleSecurity)),
		},
	}
	if s.KPISeed != nil && s.KPISeed.CarrierRating > 0 {
		k.CarrierRating = s.KPISeed.CarrierRating
	}
	return validate.ClampKPI(k)
}
