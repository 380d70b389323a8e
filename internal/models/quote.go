package models

import "time"

// Probabilities are module scores expressed in [0,1].
type Probabilities struct {
	DelayRisk         float64 `json:"delayRisk"`
	Compliance        float64 `json:"compliance"`
	OnTimeProbability float64 `json:"onTimeProbability"`
	Congestion        float64 `json:"congestion"`
	WeatherImpact     float64 `json:"weatherImpact"`
	PoliticalRisk     float64 `json:"politicalRisk"`
	SecurityRisk      float64 `json:"securityRisk"`
}

// KPI is the per-shipment indicator record.
type KPI struct {
	RiskScore       int           `json:"riskScore"`
	TransitDays     int           `json:"transitDays"`
	ShipmentValue   float64       `json:"shipmentValue"`
	CarrierRating   float64       `json:"carrierRating"`
	Probabilities   Probabilities `json:"probabilities"`
	CarbonFootprint float64       `json:"carbonFootprint"`
}

// Rate is one priced lane/carrier candidate.
type Rate struct {
	ID          string             `json:"id,omitempty"`
	Carrier     string             `json:"carrier"`
	Origin      string             `json:"origin"`
	Destination string             `json:"destination"`
	ETD         time.Time          `json:"etd"`
	BaseFreight float64            `json:"baseFreight"`
	Surcharges  map[string]float64 `json:"surcharges,omitempty"`
	TotalCost   *float64           `json:"totalCost,omitempty"`
	Currency    string             `json:"currency"`
}

// PricedOption is a rate with its risk-adjusted cost.
type PricedOption struct {
	Rate         Rate    `json:"rate"`
	BaseCost     float64 `json:"baseCost"`
	RiskLoading  float64 `json:"riskLoading"`
	AdjustedCost float64 `json:"adjustedCost"`
}

// Breakdown itemises how the best option's price was reached.
type Breakdown struct {
	BaseFreight      float64            `json:"baseFreight"`
	Surcharges       map[string]float64 `json:"surcharges,omitempty"`
	TotalCostApplied bool               `json:"totalCostApplied"`
	BaseCost         float64            `json:"baseCost"`
	TotalRisk        float64            `json:"totalRisk"`
	RiskPremiumAlpha float64            `json:"riskPremiumAlpha"`
	RiskLoading      float64            `json:"riskLoading"`
	AdjustedCost     float64            `json:"adjustedCost"`
	Currency         string             `json:"currency"`
}

// Premium is the cargo insurance price derived from the snapshot.
type Premium struct {
	CargoValue     float64 `json:"cargoValue"`
	RiskClass      string  `json:"riskClass"`
	BaseRate       float64 `json:"baseRate"`
	RiskMultiplier float64 `json:"riskMultiplier"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

// Quote is the best priced option with its alternatives and premium.
type Quote struct {
	RequestID      string         `json:"requestId"`
	ShipmentID     string         `json:"shipmentId"`
	Currency       string         `json:"currency"`
	Best           PricedOption   `json:"best"`
	Alternatives   []PricedOption `json:"alternatives"`
	Breakdown      Breakdown      `json:"breakdown"`
	Premium        Premium        `json:"premium"`
	TotalRisk      float64        `json:"totalRisk"`
	SnapshotDigest string         `json:"snapshotDigest"`
	CreatedAt      time.Time      `json:"createdAt"`
}
