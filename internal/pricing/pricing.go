// Package pricing turns a risk snapshot and candidate rates into a ranked freight quote
// and a cargo insurance premium. Money is computed in decimal and rounded to cents.
package pricing

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/risk"
)

// PremiumCurrency is the currency of cargo values and therefore of premiums.
const PremiumCurrency = "USD"

// Config holds the risk premium coefficients.
type Config struct {
	Alpha           float64
	Beta            float64
	MaxAlternatives int
}

// DefaultConfig returns alpha 0.25, beta 1.0 and three alternatives.
func DefaultConfig() Config {
	return Config{Alpha: 0.25, Beta: 1.0, MaxAlternatives: 3}
}

// Engine prices rate candidates and insurance for a snapshot.
type Engine struct {
	cfg    Config
	tables *risk.Tables
}

// New creates a pricing engine.
func New(cfg Config, tables *risk.Tables) *Engine {
	return &Engine{cfg: cfg, tables: tables}
}

var hundred = decimal.NewFromInt(100)

// multiplier is 1 + k*total/100.
func multiplier(k, total float64) decimal.Decimal {
	return decimal.NewFromFloat(k).Mul(decimal.NewFromFloat(total)).Div(hundred).Add(decimal.NewFromInt(1))
}

func baseCost(r models.Rate) decimal.Decimal {
	if r.TotalCost != nil {
		return decimal.NewFromFloat(*r.TotalCost)
	}
	sum := decimal.NewFromFloat(r.BaseFreight)
	for _, amount := range r.Surcharges {
		sum = sum.Add(decimal.NewFromFloat(amount))
	}
	return sum
}

type priced struct {
	opt      models.PricedOption
	adjusted decimal.Decimal
}

func (e *Engine) price(r models.Rate, total float64) priced {
	base := baseCost(r).Round(2)
	adjusted := base.Mul(multiplier(e.cfg.Alpha, total)).Round(2)
	return priced{
		adjusted: adjusted,
		opt: models.PricedOption{
			Rate:         r,
			BaseCost:     base.InexactFloat64(),
			RiskLoading:  adjusted.Sub(base).InexactFloat64(),
			AdjustedCost: adjusted.InexactFloat64(),
		},
	}
}

// Price computes the risk-adjusted cost of a single rate.
func (e *Engine) Price(r models.Rate, totalRisk float64) models.PricedOption {
	return e.price(r, totalRisk).opt
}

func checkRisk(total float64) error {
	if math.IsNaN(total) || total < 0 || total > 100 {
		return apperr.New(apperr.Service, "total risk outside [0,100]")
	}
	return nil
}

// Rank prices every candidate and orders them by adjusted cost, then earliest ETD, then
// carrier name. Candidates without an ETD sort after those with one.
func (e *Engine) Rank(rates []models.Rate, totalRisk float64) ([]models.PricedOption, error) {
	if len(rates) == 0 {
		return nil, apperr.NotFoundf("no rate candidates")
	}
	if err := checkRisk(totalRisk); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(rates[0].Currency)
	for _, r := range rates[1:] {
		if strings.ToUpper(r.Currency) != currency {
			return nil, apperr.Validationf("mixed currencies")
		}
	}

	ps := make([]priced, len(rates))
	for i, r := range rates {
		ps[i] = e.price(r, totalRisk)
	}
	sort.SliceStable(ps, func(i, j int) bool {
		if c := ps[i].adjusted.Cmp(ps[j].adjusted); c != 0 {
			return c < 0
		}
		ei, ej := ps[i].opt.Rate.ETD, ps[j].opt.Rate.ETD
		if !ei.Equal(ej) {
			switch {
			case ei.IsZero():
				return false
			case ej.IsZero():
				return true
			}
			return ei.Before(ej)
		}
		return ps[i].opt.Rate.Carrier < ps[j].opt.Rate.Carrier
	})

	out := make([]models.PricedOption, len(ps))
	for i, p := range ps {
		out[i] = p.opt
	}
	return out, nil
}

// RiskClass maps a snapshot level onto an insurance rate class.
func RiskClass(level models.Level) string {
	return strings.ToLower(string(level))
}

// Premium prices cargo insurance: value x class rate x (1 + beta*total/100).
func (e *Engine) Premium(cargoValue float64, level models.Level, totalRisk float64) (models.Premium, error) {
	if err := checkRisk(totalRisk); err != nil {
		return models.Premium{}, err
	}
	class := RiskClass(level)
	rate, ok := e.tables.BaseRate(class)
	if !ok {
		return models.Premium{}, apperr.New(apperr.Service, "no base rate for risk class "+class)
	}
	mult := multiplier(e.cfg.Beta, totalRisk)
	amount := decimal.NewFromFloat(cargoValue).Mul(decimal.NewFromFloat(rate)).Mul(mult).Round(2)
	return models.Premium{
		CargoValue:     cargoValue,
		RiskClass:      class,
		BaseRate:       rate,
		RiskMultiplier: mult.InexactFloat64(),
		Amount:         amount.InexactFloat64(),
		Currency:       PremiumCurrency,
	}, nil
}

// Quote ranks rates against the snapshot and assembles the immutable quote.
func (e *Engine) Quote(requestID string, s models.Shipment, snap models.RiskSnapshot, rates []models.Rate, now time.Time) (models.Quote, error) {
	ranked, err := e.Rank(rates, snap.TotalRisk)
	if err != nil {
		return models.Quote{}, err
	}
	premium, err := e.Premium(s.Cargo.ValueUSD, snap.Level, snap.TotalRisk)
	if err != nil {
		return models.Quote{}, err
	}

	best := ranked[0]
	alts := ranked[1:]
	if len(alts) > e.cfg.MaxAlternatives {
		alts = alts[:e.cfg.MaxAlternatives]
	}
	currency := strings.ToUpper(best.Rate.Currency)
	return models.Quote{
		RequestID:    requestID,
		ShipmentID:   s.ID,
		Currency:     currency,
		Best:         best,
		Alternatives: append([]models.PricedOption{}, alts...),
		Breakdown: models.Breakdown{
			BaseFreight:      best.Rate.BaseFreight,
			Surcharges:       best.Rate.Surcharges,
			TotalCostApplied: best.Rate.TotalCost != nil,
			BaseCost:         best.BaseCost,
			TotalRisk:        snap.TotalRisk,
			RiskPremiumAlpha: e.cfg.Alpha,
			RiskLoading:      best.RiskLoading,
			AdjustedCost:     best.AdjustedCost,
			Currency:         currency,
		},
		Premium:        premium,
		TotalRisk:      snap.TotalRisk,
		SnapshotDigest: snap.Digest,
		CreatedAt:      now.UTC().Truncate(time.Microsecond),
	}, nil
}
