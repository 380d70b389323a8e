// Package risk holds the fixed registry of risk module computers and the read-only
// reference tables they consult.
package risk

import (
	"strings"
	"time"
)

// Hazard is a seasonal weather window affecting a set of ports.
type Hazard struct {
	Name    string
	Ports   map[string]bool
	Months  map[time.Month]bool
	Score   int
	Message string
}

// Tables is the process-wide reference registry. It is built once at start-up and
// never written afterwards, so it is safe to share across requests without locking.
type Tables struct {
	CongestedPorts      map[string]bool
	CarrierReliability  map[string]float64
	DefaultReliability  float64
	ModeFactors         map[string]float64
	DefaultModeFactor   float64
	BaseRateClasses     map[string]float64
	Hazards             []Hazard
	CountryRisk         map[string]int
	SanctionedCountries map[string]bool
	PiracyCountries     map[string]bool
	TheftProneCargo     map[string]bool
	HighValueThreshold  float64
	ControlledHSChapter map[string]int
	DelayBase           map[string]int
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func months(ms ...time.Month) map[time.Month]bool {
	m := make(map[time.Month]bool, len(ms))
	for _, mo := range ms {
		m[mo] = true
	}
	return m
}

// DefaultTables returns the built-in reference data.
func DefaultTables() *Tables {
	return &Tables{
		CongestedPorts: set("SGSIN", "USLAX", "USNYC"),
		CarrierReliability: map[string]float64{
			"MAERSK":      0.92,
			"MSC":         0.85,
			"CMA CGM":     0.88,
			"HAPAG-LLOYD": 0.90,
			"COSCO":       0.86,
			"EVERGREEN":   0.87,
			"ONE":         0.84,
			"ZIM":         0.78,
			"DHL":         0.93,
			"FEDEX":       0.94,
			"UPS":         0.93,
		},
		DefaultReliability: 0.75,
		ModeFactors: map[string]float64{
			"sea":  0.015,
			"road": 0.062,
			"air":  0.500,
			"rail": 0.022,
		},
		DefaultModeFactor: 0.100,
		BaseRateClasses: map[string]float64{
			"low":      0.002,
			"medium":   0.005,
			"high":     0.012,
			"critical": 0.030,
		},
		Hazards: []Hazard{
			{
				Name:    "typhoon",
				Ports:   set("CNSHA", "CNNGB", "CNSZX", "HKHKG", "TWKHH", "JPTYO", "JPYOK", "PHMNL", "KRPUS", "VNSGN"),
				Months:  months(time.July, time.August, time.September, time.October),
				Score:   60,
				Message: "Departure falls in typhoon season on route",
			},
			{
				Name:    "hurricane",
				Ports:   set("USHOU", "USMIA", "USMSY", "USSAV", "USJAX", "MXVER", "BSFPO", "JMKIN"),
				Months:  months(time.June, time.July, time.August, time.September, time.October, time.November),
				Score:   55,
				Message: "Departure falls in Atlantic hurricane season on route",
			},
			{
				Name:    "monsoon",
				Ports:   set("INNSA", "INMAA", "LKCMB", "BDCGP", "MMRGN"),
				Months:  months(time.June, time.July, time.August, time.September),
				Score:   45,
				Message: "Southwest monsoon affecting port operations",
			},
			{
				Name:    "north-atlantic-winter",
				Ports:   set("DEHAM", "NLRTM", "BEANR", "GBFXT", "USNYC", "CAHAL"),
				Months:  months(time.December, time.January, time.February),
				Score:   40,
				Message: "North Atlantic winter storms on route",
			},
		},
		CountryRisk: map[string]int{
			"RU": 70, "UA": 80, "BY": 65, "IR": 85, "KP": 95, "SY": 90, "CU": 60,
			"VE": 60, "YE": 80, "SD": 75, "MM": 55, "LY": 70, "AF": 85, "IQ": 60,
			"NG": 45, "PK": 45, "EG": 35, "TR": 30, "CN": 25, "IN": 15,
		},
		SanctionedCountries: set("IR", "KP", "SY", "CU"),
		PiracyCountries:     set("SO", "YE", "DJ", "ER", "NG", "BJ", "TG", "GH", "ID", "MY", "PH"),
		TheftProneCargo:     set("electronics", "pharmaceuticals", "tobacco", "alcohol", "apparel", "luxury goods"),
		HighValueThreshold:  500000,
		ControlledHSChapter: map[string]int{
			"93": 80, // arms and ammunition
			"36": 75, // explosives
			"28": 45, // inorganic chemicals
			"29": 45, // organic chemicals
			"30": 35, // pharmaceuticals
			"24": 35, // tobacco
			"22": 25, // beverages and spirits
		},
		DelayBase: map[string]int{
			"sea":  20,
			"rail": 15,
			"road": 10,
			"air":  5,
		},
	}
}

// Reliability returns the on-time reliability of carrier in [0,1].
func (t *Tables) Reliability(carrier string) float64 {
	if r, ok := t.CarrierReliability[NormalizeCarrier(carrier)]; ok {
		return r
	}
	return t.DefaultReliability
}

// ModeFactor returns the emission factor for a transport mode.
func (t *Tables) ModeFactor(mode string) float64 {
	if f, ok := t.ModeFactors[strings.ToLower(strings.TrimSpace(mode))]; ok {
		return f
	}
	return t.DefaultModeFactor
}

// BaseRate returns the insurance base rate for a risk class such as "medium".
func (t *Tables) BaseRate(class string) (float64, bool) {
	r, ok := t.BaseRateClasses[strings.ToLower(class)]
	return r, ok
}

// NormalizeCarrier upper-cases a carrier name and collapses inner whitespace.
func NormalizeCarrier(c string) string {
	return strings.ToUpper(strings.Join(strings.Fields(c), " "))
}

// Country extracts the ISO country prefix of a five-letter UN/LOCODE port code.
func Country(port string) string {
	if len(port) != 5 {
		return ""
	}
	c := strings.ToUpper(port[:2])
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return c
}
