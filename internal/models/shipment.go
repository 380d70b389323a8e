package models

import (
	"strings"
	"time"
)

// Cargo describes the goods moving in a shipment.
type Cargo struct {
	Type      string  `json:"type"`
	HSCode    string  `json:"hsCode"`
	WeightKg  float64 `json:"weightKg"`
	VolumeCbm float64 `json:"volumeCbm"`
	ValueUSD  float64 `json:"valueUsd"`
	Insurance string  `json:"insurance"`
}

// Leg is one carrier movement within a transport plan.
type Leg struct {
	Carrier    string    `json:"carrier"`
	Vessel     string    `json:"vessel"`
	Voyage     string    `json:"voyage"`
	ETD        time.Time `json:"etd"`
	ETA        time.Time `json:"eta"`
	DistanceKm float64   `json:"distanceKm"`
}

// TransitDays is the leg duration rounded to whole days, 0 when either end is unknown
// or the dates are inverted.
func (l Leg) TransitDays() int {
	if l.ETD.IsZero() || l.ETA.IsZero() || !l.ETA.After(l.ETD) {
		return 0
	}
	return int(l.ETA.Sub(l.ETD).Hours()/24 + 0.5)
}

// Transport is the mode, lane and legs of a shipment.
type Transport struct {
	Mode        string `json:"mode"`
	Incoterm    string `json:"incoterm"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Legs        []Leg  `json:"legs"`
}

// PrimaryCarrier is the first named carrier on the plan, or "".
func (t Transport) PrimaryCarrier() string {
	for _, l := range t.Legs {
		if c := strings.TrimSpace(l.Carrier); c != "" && c != Unknown {
			return c
		}
	}
	return ""
}

// DistanceKm sums leg distances.
func (t Transport) DistanceKm() float64 {
	var d float64
	for _, l := range t.Legs {
		d += l.DistanceKm
	}
	return d
}

// TransitDays sums the legs' rounded transit days.
func (t Transport) TransitDays() int {
	var days int
	for _, l := range t.Legs {
		days += l.TransitDays()
	}
	return days
}

// Shipment is the root entity of a pipeline run. It is immutable once validated.
type Shipment struct {
	ID                 string                   `json:"id"`
	Cargo              Cargo                    `json:"cargo"`
	Transport          Transport                `json:"transport"`
	OriginPort         string                   `json:"originPort"`
	DestinationPort    string                   `json:"destinationPort"`
	EstimatedDeparture time.Time                `json:"estimatedDeparture"`
	ModuleSeeds        map[ModuleKey]RiskModule `json:"riskModules,omitempty"`
	KPISeed            *KPI                     `json:"kpi,omitempty"`
}

// Placeholder strings produced by the validators for absent values.
const (
	Unknown       = "Unknown"
	NotApplicable = "N/A"
)

// Known reports whether s carries a real value rather than a placeholder.
func Known(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != Unknown && s != NotApplicable
}
