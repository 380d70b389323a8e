package validate

import (
	"sort"
	"strings"

	"github.com/refset/freight-risk-quoting/internal/models"
)

const (
	unknown = models.Unknown
	na      = models.NotApplicable
)

// Shipment builds a canonical shipment from a raw payload.
func Shipment(p map[string]any) models.Shipment {
	s := models.Shipment{}
	v, _ := lookup(p, "id", "shipmentId", "shipment_id")
	s.ID = String(v, unknown)

	v, _ = lookup(p, "cargo")
	s.Cargo = Cargo(Map(v))

	v, _ = lookup(p, "transport")
	s.Transport = Transport(Map(v))

	s.OriginPort = s.Transport.Origin
	if v, ok := lookup(p, "originPort", "origin_port", "origin"); ok {
		s.OriginPort = Port(v)
	}
	s.DestinationPort = s.Transport.Destination
	if v, ok := lookup(p, "destinationPort", "destination_port", "destination"); ok {
		s.DestinationPort = Port(v)
	}

	v, _ = lookup(p, "estimatedDeparture", "estimated_departure", "etd")
	s.EstimatedDeparture = Time(v)
	if s.EstimatedDeparture.IsZero() && len(s.Transport.Legs) > 0 {
		s.EstimatedDeparture = s.Transport.Legs[0].ETD
	}

	if v, ok := lookup(p, "riskModules", "risk_modules"); ok {
		s.ModuleSeeds = ModuleSeeds(v)
	}
	if v, ok := lookup(p, "kpi"); ok {
		k := KPI(Map(v))
		s.KPISeed = &k
	}
	return s
}

// Cargo normalizes a cargo payload.
func Cargo(p map[string]any) models.Cargo {
	c := models.Cargo{}
	v, _ := lookup(p, "type", "cargoType", "cargo_type")
	c.Type = String(v, unknown)
	v, _ = lookup(p, "hsCode", "hs_code", "hs")
	c.HSCode = String(v, na)
	v, _ = lookup(p, "weight", "weightKg", "weight_kg")
	c.WeightKg = NonNegative(v)
	v, _ = lookup(p, "volume", "volumeCbm", "volume_cbm")
	c.VolumeCbm = NonNegative(v)
	v, _ = lookup(p, "value", "valueUsd", "value_usd")
	c.ValueUSD = NonNegative(v)
	v, _ = lookup(p, "insurance")
	c.Insurance = String(v, na)
	return c
}

// Transport normalizes a transport payload and its legs.
func Transport(p map[string]any) models.Transport {
	t := models.Transport{}
	v, _ := lookup(p, "mode")
	t.Mode = strings.ToLower(String(v, ""))
	if t.Mode == "" {
		t.Mode = unknown
	}
	v, _ = lookup(p, "incoterm", "incoterms")
	t.Incoterm = strings.ToUpper(String(v, na))
	v, _ = lookup(p, "origin", "originPort", "origin_port")
	t.Origin = Port(v)
	v, _ = lookup(p, "destination", "destinationPort", "destination_port")
	t.Destination = Port(v)

	v, _ = lookup(p, "legs")
	for _, raw := range List(v) {
		t.Legs = append(t.Legs, Leg(Map(raw)))
	}
	return t
}

// Leg normalizes a single leg.
func Leg(p map[string]any) models.Leg {
	l := models.Leg{}
	v, _ := lookup(p, "carrier")
	l.Carrier = String(v, unknown)
	v, _ = lookup(p, "vessel")
	l.Vessel = String(v, na)
	v, _ = lookup(p, "voyage")
	l.Voyage = String(v, na)
	v, _ = lookup(p, "etd")
	l.ETD = Time(v)
	v, _ = lookup(p, "eta")
	l.ETA = Time(v)
	v, _ = lookup(p, "distance", "distanceKm", "distance_km")
	l.DistanceKm = NonNegative(v)
	return l
}

// Rate normalizes a rate candidate. Currency defaults to USD and is upper-cased.
func Rate(p map[string]any) models.Rate {
	r := models.Rate{}
	v, _ := lookup(p, "id", "rateId", "rate_id")
	r.ID = String(v, "")
	v, _ = lookup(p, "carrier")
	r.Carrier = String(v, unknown)
	v, _ = lookup(p, "origin")
	r.Origin = Port(v)
	v, _ = lookup(p, "destination")
	r.Destination = Port(v)
	v, _ = lookup(p, "etd")
	r.ETD = Time(v)
	v, _ = lookup(p, "baseFreight", "base_freight", "freight")
	r.BaseFreight = NonNegative(v)

	v, _ = lookup(p, "surcharges")
	if raw := Map(v); len(raw) > 0 {
		r.Surcharges = make(map[string]float64, len(raw))
		for name, amount := range raw {
			r.Surcharges[strings.TrimSpace(name)] = NonNegative(amount)
		}
	}
	if v, ok := lookup(p, "totalCost", "total_cost"); ok {
		total := NonNegative(v)
		r.TotalCost = &total
	}
	v, _ = lookup(p, "currency")
	r.Currency = strings.ToUpper(String(v, "USD"))
	return r
}

// Rates normalizes a list of rate payloads, skipping non-object entries.
func Rates(v any) []models.Rate {
	var out []models.Rate
	for _, raw := range List(v) {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, Rate(m))
		}
	}
	return out
}

// RiskModule normalizes a module seed. The level is derived from the score unless
// the payload names a valid level explicitly.
func RiskModule(key models.ModuleKey, p map[string]any) models.RiskModule {
	m := models.RiskModule{Key: key}
	v, _ := lookup(p, "title", "name")
	m.Title = String(v, unknown)
	v, _ = lookup(p, "score")
	m.Score = Score(v)
	v, _ = lookup(p, "level")
	m.Level = models.Level(strings.ToUpper(String(v, "")))
	if !m.Level.Valid() {
		m.Level = models.LevelForScore(m.Score)
	}
	v, _ = lookup(p, "message")
	m.Message = String(v, "")
	return m
}

// ModuleSeeds accepts either {"weather": {...}} or [{"key": "weather", ...}].
// Unknown keys are dropped.
func ModuleSeeds(v any) map[models.ModuleKey]models.RiskModule {
	seeds := map[models.ModuleKey]models.RiskModule{}
	add := func(key string, raw any) {
		k := models.ModuleKey(strings.ToLower(strings.TrimSpace(key)))
		if !k.Valid() {
			return
		}
		seeds[k] = RiskModule(k, Map(raw))
	}

	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, t[k])
		}
	case []any:
		for _, raw := range t {
			m := Map(raw)
			key, _ := lookup(m, "key", "module")
			add(String(key, ""), m)
		}
	}
	if len(seeds) == 0 {
		return nil
	}
	return seeds
}

// KPI normalizes a KPI payload.
func KPI(p map[string]any) models.KPI {
	k := models.KPI{}
	v, _ := lookup(p, "riskScore", "risk_score")
	k.RiskScore = Int(v)
	v, _ = lookup(p, "transitDays", "transit_days")
	k.TransitDays = Int(v)
	v, _ = lookup(p, "shipmentValue", "shipment_value")
	k.ShipmentValue = Float(v)
	v, _ = lookup(p, "carrierRating", "carrier_rating")
	k.CarrierRating = Float(v)
	v, _ = lookup(p, "carbonFootprint", "carbon_footprint")
	k.CarbonFootprint = Float(v)

	v, _ = lookup(p, "probabilities")
	probs := Map(v)
	get := func(keys ...string) float64 {
		v, _ := lookup(probs, keys...)
		return Float(v)
	}
	k.Probabilities = models.Probabilities{
		DelayRisk:         get("delayRisk", "delay_risk"),
		Compliance:        get("compliance"),
		OnTimeProbability: get("onTimeProbability", "on_time_probability"),
		Congestion:        get("congestion"),
		WeatherImpact:     get("weatherImpact", "weather_impact"),
		PoliticalRisk:     get("politicalRisk", "political_risk"),
		SecurityRisk:      get("securityRisk", "security_risk"),
	}
	return ClampKPI(k)
}

// MaxCarrierRating is the top of the carrier star scale.
const MaxCarrierRating = 5.0

// ClampKPI enforces the KPI invariants on any KPI, seeded or built.
func ClampKPI(k models.KPI) models.KPI {
	k.RiskScore = ClampInt(k.RiskScore, 0, 100)
	if k.TransitDays < 0 {
		k.TransitDays = 0
	}
	k.ShipmentValue = NonNegative(k.ShipmentValue)
	k.CarbonFootprint = NonNegative(k.CarbonFootprint)
	k.CarrierRating = Clamp(k.CarrierRating, 0, MaxCarrierRating)

	p := &k.Probabilities
	for _, f := range []*float64{
		&p.DelayRisk, &p.Compliance, &p.OnTimeProbability, &p.Congestion,
		&p.WeatherImpact, &p.PoliticalRisk, &p.SecurityRisk,
	} {
		*f = Clamp(*f, 0, 1)
	}
	return k
}
