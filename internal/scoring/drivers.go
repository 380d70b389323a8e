package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/refset/freight-risk-quoting/internal/models"
)

func (a *Aggregator) blocked(name string) bool {
	name = strings.TrimSpace(name)
	for _, b := range a.cfg.Blocklist {
		if strings.EqualFold(name, strings.TrimSpace(b)) {
			return true
		}
	}
	return false
}

// Drivers explains total with the modules that carry a significant share of it.
// Impact is the module's percentage of the weighted score sum. The result is never nil.
func (a *Aggregator) Drivers(modules []models.RiskModule, total float64) []models.RiskDriver {
	drivers := []models.RiskDriver{}
	if total < a.cfg.LowRiskSilence {
		return drivers
	}

	var sum float64
	contrib := make([]float64, len(modules))
	for i, m := range modules {
		contrib[i] = a.Weight(m.Key) * float64(m.Score)
		if contrib[i] > 0 {
			sum += contrib[i]
		}
	}
	if sum <= 0 {
		return drivers
	}

	for i, m := range modules {
		impact := 100 * contrib[i] / sum
		switch {
		case impact <= 0, impact < a.cfg.MinDriverImpact:
			continue
		case a.blocked(m.Title):
			continue
		case m.Level.Rank() < a.cfg.DriverMinLevel.Rank():
			continue
		}
		drivers = append(drivers, models.RiskDriver{
			Name:        strings.TrimSpace(m.Title),
			Module:      m.Key,
			Impact:      math.Round(impact*10) / 10,
			Description: m.Message,
		})
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		if drivers[i].Impact != drivers[j].Impact {
			return drivers[i].Impact > drivers[j].Impact
		}
		if drivers[i].Name != drivers[j].Name {
			return drivers[i].Name < drivers[j].Name
		}
		return drivers[i].Module < drivers[j].Module
	})
	if a.cfg.MaxDrivers >= 0 && len(drivers) > a.cfg.MaxDrivers {
		drivers = drivers[:a.cfg.MaxDrivers]
	}
	return drivers
}
