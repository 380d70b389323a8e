package risk

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/refset/freight-risk-quoting/internal/models"
)

// Input is everything a computer may look at. Reliability is resolved for the primary
// carrier before the computers run, so every computer stays a pure function.
type Input struct {
	Shipment    models.Shipment
	Reliability float64
	Tables      *Tables
}

// Computer scores one aspect of shipment risk. Computers never fail: without a signal
// they return score 0 and level LOW.
type Computer func(Input) models.RiskModule

// Titles are the human names that become driver names.
var Titles = map[models.ModuleKey]string{
	models.ModuleWeather:    "Weather exposure",
	models.ModuleCongestion: "Port congestion",
	models.ModuleCarrier:    "Carrier reliability",
	models.ModulePolitical:  "Political risk",
	models.ModuleSecurity:   "Security risk",
	models.ModuleCompliance: "Customs compliance",
	models.ModuleDelay:      "Schedule delay",
}

var registry = map[models.ModuleKey]Computer{
	models.ModuleWeather:    Weather,
	models.ModuleCongestion: Congestion,
	models.ModuleCarrier:    Carrier,
	models.ModulePolitical:  Political,
	models.ModuleSecurity:   Security,
	models.ModuleCompliance: Compliance,
	models.ModuleDelay:      Delay,
}

// Compute runs the registry in fixed order. A seeded module replaces the computed one.
func Compute(in Input) []models.RiskModule {
	out := make([]models.RiskModule, 0, len(models.ModuleKeys))
	for _, key := range models.ModuleKeys {
		if seed, ok := in.Shipment.ModuleSeeds[key]; ok {
			seed.Key = key
			out = append(out, seed)
			continue
		}
		out = append(out, registry[key](in))
	}
	return out
}

func module(key models.ModuleKey, score int, message string) models.RiskModule {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return models.RiskModule{
		Key:     key,
		Title:   Titles[key],
		Score:   score,
		Level:   models.LevelForScore(score),
		Message: message,
	}
}

func routePorts(s models.Shipment) []string {
	var ports []string
	for _, p := range []string{s.OriginPort, s.DestinationPort} {
		if models.Known(p) {
			ports = append(ports, p)
		}
	}
	return ports
}

func routeCountries(s models.Shipment) []string {
	var countries []string
	for _, p := range routePorts(s) {
		if c := Country(p); c != "" {
			countries = append(countries, c)
		}
	}
	return countries
}

// Weather scores seasonal hazards on the route for the departure month.
func Weather(in Input) models.RiskModule {
	ports := routePorts(in.Shipment)
	if len(ports) == 0 {
		return module(models.ModuleWeather, 0, "No route information for weather assessment")
	}
	best := module(models.ModuleWeather, 10, "No seasonal weather exposure on route")
	dep := in.Shipment.EstimatedDeparture
	if dep.IsZero() {
		return best
	}
	for _, h := range in.Tables.Hazards {
		if !h.Months[dep.Month()] || h.Score <= best.Score {
			continue
		}
		for _, p := range ports {
			if h.Ports[p] {
				best = module(models.ModuleWeather, h.Score, h.Message)
				break
			}
		}
	}
	return best
}

// Congestion scores the destination port.
func Congestion(in Input) models.RiskModule {
	dest := in.Shipment.DestinationPort
	if !models.Known(dest) {
		return module(models.ModuleCongestion, 0, "No destination port")
	}
	if in.Tables.CongestedPorts[dest] {
		return module(models.ModuleCongestion, 35, "Destination port known for congestion")
	}
	return module(models.ModuleCongestion, 15, "Destination port operating normally")
}

// Carrier scores the primary carrier from its reliability.
func Carrier(in Input) models.RiskModule {
	carrier := in.Shipment.Transport.PrimaryCarrier()
	if carrier == "" {
		return module(models.ModuleCarrier, 0, "No carrier assigned")
	}
	rel := math.Max(0, math.Min(1, in.Reliability))
	score := int(math.Round((1 - rel) * 100))
	return module(models.ModuleCarrier, score,
		fmt.Sprintf("%s on-time reliability %.0f%%", carrier, rel*100))
}

// Political scores sanctions and instability for the lane countries.
func Political(in Input) models.RiskModule {
	countries := routeCountries(in.Shipment)
	if len(countries) == 0 {
		return module(models.ModulePolitical, 0, "No jurisdiction information")
	}
	score, worst := 0, ""
	for _, c := range countries {
		if r := in.Tables.CountryRisk[c]; r > score {
			score, worst = r, c
		}
	}
	for _, c := range countries {
		if in.Tables.SanctionedCountries[c] {
			m := module(models.ModulePolitical, score, "Route touches sanctioned jurisdiction "+c)
			m.Level = models.LevelCritical
			return m
		}
	}
	if score == 0 {
		return module(models.ModulePolitical, 5, "Stable jurisdictions on route")
	}
	return module(models.ModulePolitical, score, "Elevated political risk in "+worst)
}

// Security scores piracy and theft exposure.
func Security(in Input) models.RiskModule {
	s := in.Shipment
	score := 0
	var reasons []string
	for _, c := range routeCountries(s) {
		if in.Tables.PiracyCountries[c] {
			score += 45
			reasons = append(reasons, "Route exposed to piracy near "+c)
			break
		}
	}
	if in.Tables.TheftProneCargo[strings.ToLower(s.Cargo.Type)] {
		score += 20
		reasons = append(reasons, "Theft-prone cargo type")
	}
	if in.Tables.HighValueThreshold > 0 && s.Cargo.ValueUSD >= in.Tables.HighValueThreshold {
		score += 15
		reasons = append(reasons, "High-value consignment")
	}
	if len(reasons) == 0 {
		return module(models.ModuleSecurity, 0, "No security exposure identified")
	}
	return module(models.ModuleSecurity, score, strings.Join(reasons, "; "))
}

// hsChapter returns the two-digit chapter of an HS code, ignoring separators.
func hsChapter(code string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, code)
	if len(digits) < 2 {
		return ""
	}
	return digits[:2]
}

// Compliance scores customs and documentation exposure of the cargo.
func Compliance(in Input) models.RiskModule {
	s := in.Shipment
	score, msg := 10, "Standard customs profile"
	if chapter := hsChapter(s.Cargo.HSCode); !models.Known(s.Cargo.HSCode) || chapter == "" {
		score, msg = 40, "HS code missing; classification required"
	} else if c, ok := in.Tables.ControlledHSChapter[chapter]; ok {
		score, msg = c, "HS chapter "+chapter+" is subject to licensing controls"
	}
	if s.Transport.Incoterm == "DDP" {
		score += 10
		msg += "; DDP puts import clearance on the seller"
	}
	return module(models.ModuleCompliance, score, msg)
}

// Delay scores schedule variance for the mode and legs.
func Delay(in Input) models.RiskModule {
	t := in.Shipment.Transport
	base, known := in.Tables.DelayBase[t.Mode]
	if !known && len(t.Legs) == 0 {
		return module(models.ModuleDelay, 0, "No transport plan to assess delay")
	}
	if !known {
		base = 10
	}
	score := base
	msg := fmt.Sprintf("Typical schedule variance for %s freight", t.Mode)

	if n := len(t.Legs) - 1; n > 0 {
		score += min(n*10, 30)
		msg = fmt.Sprintf("%d transshipment(s) add schedule risk", n)
	}
	if days := t.TransitDays(); days > 30 {
		score += 10
		msg += fmt.Sprintf("; long transit of %d days", days)
	}
	return module(models.ModuleDelay, score, msg)
}
