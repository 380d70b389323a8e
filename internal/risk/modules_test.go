package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refset/freight-risk-quoting/internal/models"
)

func seaShipment(origin, dest string, departure time.Time) models.Shipment {
	return models.Shipment{
		ID:                 "SHP-TEST",
		Cargo:              models.Cargo{Type: "rice", HSCode: "1006", WeightKg: 1000, VolumeCbm: 2, ValueUSD: 10000},
		Transport:          models.Transport{Mode: "sea", Incoterm: "FOB", Origin: origin, Destination: dest, Legs: []models.Leg{{Carrier: "ONE", DistanceKm: 5300}}},
		OriginPort:         origin,
		DestinationPort:    dest,
		EstimatedDeparture: departure,
	}
}

func input(s models.Shipment) Input {
	tables := DefaultTables()
	return Input{Shipment: s, Reliability: tables.Reliability(s.Transport.PrimaryCarrier()), Tables: tables}
}

func TestCompute_LowRiskLane(t *testing.T) {
	s := seaShipment("SGSIN", "JPTYO", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	mods := Compute(input(s))
	require.Len(t, mods, len(models.ModuleKeys))

	got := map[models.ModuleKey]int{}
	for i, m := range mods {
		assert.Equal(t, models.ModuleKeys[i], m.Key)
		assert.NotEmpty(t, m.Title)
		assert.NotEmpty(t, m.Message)
		assert.Equal(t, models.LevelForScore(m.Score), m.Level)
		got[m.Key] = m.Score
	}
	assert.Equal(t, map[models.ModuleKey]int{
		models.ModuleWeather:    10,
		models.ModuleCongestion: 15,
		models.ModuleCarrier:    16,
		models.ModulePolitical:  5,
		models.ModuleSecurity:   0,
		models.ModuleCompliance: 10,
		models.ModuleDelay:      20,
	}, got)
}

func TestCongestion_Table(t *testing.T) {
	for _, port := range []string{"SGSIN", "USLAX", "USNYC"} {
		m := Congestion(input(seaShipment("CNSHA", port, time.Time{})))
		assert.Equal(t, 35, m.Score, port)
		assert.Equal(t, "Destination port known for congestion", m.Message)
	}
	assert.Equal(t, 15, Congestion(input(seaShipment("CNSHA", "DEHAM", time.Time{}))).Score)
	assert.Equal(t, 0, Congestion(input(seaShipment("CNSHA", models.Unknown, time.Time{}))).Score)
}

func TestCarrier_DefaultReliability(t *testing.T) {
	s := seaShipment("CNSHA", "DEHAM", time.Time{})
	s.Transport.Legs[0].Carrier = "Obscure Lines"
	m := Carrier(input(s))
	assert.Equal(t, 25, m.Score)
	assert.Equal(t, models.LevelLow, m.Level)

	s.Transport.Legs = nil
	m = Carrier(input(s))
	assert.Equal(t, 0, m.Score)
	assert.Equal(t, "No carrier assigned", m.Message)
}

func TestWeather_SeasonalHazard(t *testing.T) {
	m := Weather(input(seaShipment("SGSIN", "JPTYO", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))))
	assert.Equal(t, 60, m.Score)
	assert.Equal(t, models.LevelHigh, m.Level)

	m = Weather(input(seaShipment(models.Unknown, models.Unknown, time.Time{})))
	assert.Equal(t, 0, m.Score)
}

func TestPolitical_SanctionOverridesLevel(t *testing.T) {
	m := Political(input(seaShipment("AEJEA", "CUHAV", time.Time{})))
	assert.Equal(t, 60, m.Score)
	assert.Equal(t, models.LevelCritical, m.Level)
	assert.Contains(t, m.Message, "CU")

	m = Political(input(seaShipment("NLRTM", "RULED", time.Time{})))
	assert.Equal(t, 70, m.Score)
	assert.Equal(t, models.LevelHigh, m.Level)
}

func TestSecurity_Accumulates(t *testing.T) {
	s := seaShipment("DJJIB", "NLRTM", time.Time{})
	s.Cargo.Type = "Electronics"
	s.Cargo.ValueUSD = 750000
	m := Security(input(s))
	assert.Equal(t, 80, m.Score)
	assert.Equal(t, models.LevelCritical, m.Level)
}

func TestCompliance_Rules(t *testing.T) {
	s := seaShipment("CNSHA", "DEHAM", time.Time{})
	s.Cargo.HSCode = models.NotApplicable
	assert.Equal(t, 40, Compliance(input(s)).Score)

	s.Cargo.HSCode = "9306.30"
	s.Transport.Incoterm = "DDP"
	m := Compliance(input(s))
	assert.Equal(t, 90, m.Score)
	assert.Contains(t, m.Message, "HS chapter 93")
}

func TestDelay_Transshipments(t *testing.T) {
	etd := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := seaShipment("CNSHA", "DEHAM", etd)
	s.Transport.Legs = []models.Leg{
		{Carrier: "MSC", ETD: etd, ETA: etd.AddDate(0, 0, 20)},
		{Carrier: "MSC", ETD: etd.AddDate(0, 0, 21), ETA: etd.AddDate(0, 0, 33)},
		{Carrier: "MSC", ETD: etd.AddDate(0, 0, 34), ETA: etd.AddDate(0, 0, 36)},
	}
	m := Delay(input(s))
	assert.Equal(t, 20+20+10, m.Score)

	s.Transport = models.Transport{Mode: models.Unknown}
	assert.Equal(t, 0, Delay(input(s)).Score)
}

func TestCompute_SeedReplacesComputer(t *testing.T) {
	s := seaShipment("SGSIN", "JPTYO", time.Time{})
	s.ModuleSeeds = map[models.ModuleKey]models.RiskModule{
		models.ModuleCongestion: {Title: "Port congestion", Score: 80, Level: models.LevelCritical, Message: "Operator override"},
	}
	mods := Compute(input(s))
	assert.Equal(t, models.ModuleCongestion, mods[1].Key)
	assert.Equal(t, 80, mods[1].Score)
	assert.Equal(t, "Operator override", mods[1].Message)
}

func TestTables_Lookups(t *testing.T) {
	tables := DefaultTables()
	assert.Equal(t, 0.88, tables.Reliability("  cma   cgm "))
	assert.Equal(t, 0.75, tables.Reliability(""))
	assert.Equal(t, 0.5, tables.ModeFactor("AIR"))
	assert.Equal(t, 0.1, tables.ModeFactor("pipeline"))
	r, ok := tables.BaseRate("Medium")
	assert.True(t, ok)
	assert.Equal(t, 0.005, r)
	assert.Equal(t, "", Country("Unknown"))
	assert.Equal(t, "SG", Country("SGSIN"))
}
