package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/pricing"
	"github.com/refset/freight-risk-quoting/internal/ratesource"
	"github.com/refset/freight-risk-quoting/internal/scoring"
	"github.com/refset/freight-risk-quoting/internal/store"
)

func clock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
}

func fastRetry() RetryPolicy {
	return RetryPolicy{InitialInterval: time.Millisecond, Multiplier: 4, MaxTries: 4}
}

type recorder struct {
	snapshots, quotes atomic.Int32
	fail              bool
}

func (r *recorder) PublishSnapshot(context.Context, models.RiskSnapshot, models.KPI) error {
	r.snapshots.Add(1)
	if r.fail {
		return errors.New("broker down")
	}
	return nil
}

func (r *recorder) PublishQuote(context.Context, models.Quote) error {
	r.quotes.Add(1)
	if r.fail {
		return errors.New("broker down")
	}
	return nil
}

func (r *recorder) Close() error { return nil }

func newService(t *testing.T, mod func(*Deps)) (*Service, *store.Memory, *recorder) {
	mem, pub := store.NewMemory(), &recorder{}
	d := Deps{
		Scoring:   scoring.DefaultConfig(),
		Pricing:   pricing.DefaultConfig(),
		Store:     mem,
		Publisher: pub,
		Retry:     fastRetry(),
		Log:       zaptest.NewLogger(t),
		Now:       clock(),
		NewID:     func() string { return "req-fixed" },
	}
	if mod != nil {
		mod(&d)
	}
	return New(d), mem, pub
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

const lowRiskShipment = `{
	"id": "SHP-S1",
	"cargo": {"type": "rice", "hs_code": "1006", "weight": 1000, "volume": 2, "value": 10000},
	"transport": {
		"mode": "sea", "incoterm": "FOB", "origin": "SGSIN", "destination": "JPTYO",
		"legs": [{"carrier": "ONE", "etd": "2025-03-10", "eta": "2025-03-16", "distance": 5300}]
	}
}`

func seeded(id string, value float64, scores map[string]int, titles map[string]string) map[string]any {
	mods := map[string]any{}
	for _, k := range models.ModuleKeys {
		title := titles[string(k)]
		if title == "" {
			title = string(k) + " risk"
		}
		mods[string(k)] = map[string]any{"title": title, "score": scores[string(k)]}
	}
	return map[string]any{
		"id":          id,
		"cargo":       map[string]any{"type": "machinery", "hs_code": "8429", "weight": 5000, "value": value},
		"transport":   map[string]any{"mode": "sea", "origin": "CNSHA", "destination": "USLAX", "legs": []any{map[string]any{"carrier": "MSC"}}},
		"riskModules": mods,
	}
}

func TestRunRisk_LowRiskSilence(t *testing.T) {
	svc, mem, pub := newService(t, nil)
	res, err := svc.RunRisk(context.Background(), decode(t, lowRiskShipment))
	require.NoError(t, err)

	assert.InDelta(t, 16.2, res.Snapshot.TotalRisk, 1e-9)
	assert.Empty(t, res.Drivers)
	assert.Equal(t, 16, res.KPI.RiskScore)
	assert.Equal(t, 6, res.KPI.TransitDays)
	assert.InDelta(t, 4.2, res.KPI.CarrierRating, 1e-9)
	assert.Len(t, res.Snapshot.Modules, 7)
	assert.NotEmpty(t, res.Snapshot.Digest)

	run, err := mem.LatestRun(context.Background(), "SHP-S1")
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Digest, run.Digest)
	assert.Equal(t, int32(1), pub.snapshots.Load())
}

func TestRunRisk_DominantCongestion(t *testing.T) {
	svc, _, _ := newService(t, nil)
	p := seeded("SHP-S2", 10000, map[string]int{"weather": 10, "congestion": 80, "carrier": 20},
		map[string]string{"congestion": "Port congestion"})

	res, err := svc.RunRisk(context.Background(), map[string]any{"shipment": p})
	require.NoError(t, err)
	assert.InDelta(t, 33.0, res.Snapshot.TotalRisk, 1e-9)
	require.Len(t, res.Drivers, 1)
	assert.Equal(t, "Port congestion", res.Drivers[0].Name)
	assert.Equal(t, 72.7, res.Drivers[0].Impact)
}

func TestRunRisk_PlaceholderBlocklist(t *testing.T) {
	svc, _, _ := newService(t, nil)
	scores := map[string]int{"weather": 60, "congestion": 80, "carrier": 30}

	named, err := svc.RunRisk(context.Background(), seeded("SHP-S6A", 1, scores,
		map[string]string{"weather": "Weather exposure", "congestion": "Port congestion", "carrier": "Carrier reliability"}))
	require.NoError(t, err)
	placeholder, err := svc.RunRisk(context.Background(), seeded("SHP-S6B", 1, scores,
		map[string]string{"weather": "Weather exposure", "congestion": "Unknown", "carrier": "Carrier reliability"}))
	require.NoError(t, err)

	assert.Equal(t, named.Snapshot.TotalRisk, placeholder.Snapshot.TotalRisk)
	require.Len(t, named.Drivers, 3)
	assert.Equal(t, 40.0, named.Drivers[1].Impact)
	require.Len(t, placeholder.Drivers, 2)
	assert.Equal(t, "Weather exposure", placeholder.Drivers[0].Name)
	assert.Equal(t, "Carrier reliability", placeholder.Drivers[1].Name)
}

func TestQuote_TieBreakAndPremium(t *testing.T) {
	svc, mem, pub := newService(t, nil)
	payload := map[string]any{
		"shipment": seeded("SHP-S5", 100000, map[string]int{"weather": 50, "congestion": 50, "carrier": 50}, nil),
		"rateCandidates": []any{
			map[string]any{"carrier": "MSC", "origin": "CNSHA", "destination": "USLAX", "etd": "2025-04-01", "base_freight": 2000, "currency": "USD"},
			map[string]any{"carrier": "MAERSK", "origin": "CNSHA", "destination": "USLAX", "etd": "2025-04-01", "base_freight": 2000, "currency": "USD"},
		},
	}
	q, err := svc.Quote(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, "MAERSK", q.Best.Rate.Carrier)
	require.Len(t, q.Alternatives, 1)
	assert.Equal(t, "MSC", q.Alternatives[0].Rate.Carrier)
	assert.Equal(t, 2250.0, q.Best.AdjustedCost)
	assert.Equal(t, "medium", q.Premium.RiskClass)
	assert.Equal(t, 750.0, q.Premium.Amount)
	assert.Equal(t, "req-fixed", q.RequestID)
	assert.NotEmpty(t, q.SnapshotDigest)

	_, ok := mem.Quote("SHP-S5", "req-fixed")
	assert.True(t, ok)
	kpi, err := svc.LatestKPI(context.Background(), "SHP-S5")
	require.NoError(t, err)
	assert.Equal(t, 50, kpi.KPI.RiskScore)
	assert.Equal(t, int32(1), pub.quotes.Load())
}

func TestQuote_MixedCurrencies(t *testing.T) {
	svc, mem, _ := newService(t, nil)
	payload := map[string]any{
		"shipment": decode(t, lowRiskShipment),
		"rateCandidates": []any{
			map[string]any{"carrier": "MSC", "base_freight": 1000, "currency": "USD"},
			map[string]any{"carrier": "MAERSK", "base_freight": 900, "currency": "EUR"},
		},
	}
	_, err := svc.Quote(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, "Validation: mixed currencies", err.Error())

	_, err = mem.LatestRun(context.Background(), "SHP-S1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestQuote_LaneRatesFromSource(t *testing.T) {
	svc, _, _ := newService(t, func(d *Deps) {
		d.Rates = ratesource.NewStatic([]models.Rate{
			{Carrier: "ONE", Origin: "SGSIN", Destination: "JPTYO", BaseFreight: 800, Currency: "USD"},
			{Carrier: "EVERGREEN", Origin: "SGSIN", Destination: "JPTYO", BaseFreight: 790, Currency: "USD"},
			{Carrier: "MSC", Origin: "CNSHA", Destination: "USLAX", BaseFreight: 100, Currency: "USD"},
		})
	})
	q, err := svc.Quote(context.Background(), map[string]any{"shipment": decode(t, lowRiskShipment), "requestId": "r-77"})
	require.NoError(t, err)
	assert.Equal(t, "EVERGREEN", q.Best.Rate.Carrier)
	assert.Len(t, q.Alternatives, 1)
	assert.Equal(t, "r-77", q.RequestID)

	p := decode(t, lowRiskShipment)
	p["transport"].(map[string]any)["destination"] = "DEHAM"
	_, err = svc.Quote(context.Background(), map[string]any{"shipment": p})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestQuote_ReplayedRequestIDLeavesRunsUntouched(t *testing.T) {
	svc, mem, pub := newService(t, nil)
	payload := func() map[string]any {
		return map[string]any{
			"shipment":       decode(t, lowRiskShipment),
			"requestId":      "r-dup",
			"rateCandidates": []any{map[string]any{"carrier": "ONE", "base_freight": 800, "currency": "USD"}},
		}
	}
	_, err := svc.Quote(context.Background(), payload())
	require.NoError(t, err)
	before, err := mem.LatestRun(context.Background(), "SHP-S1")
	require.NoError(t, err)

	_, err = svc.Quote(context.Background(), payload())
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Equal(t, "Validation: quote already recorded for request r-dup", apperr.Public(err))

	after, err := mem.LatestRun(context.Background(), "SHP-S1")
	require.NoError(t, err)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.Equal(t, int32(1), pub.quotes.Load())
	assert.Equal(t, int32(1), pub.snapshots.Load())
}

type flakyRates struct {
	calls    atomic.Int32
	failures int32
}

func (f *flakyRates) Rates(ctx context.Context, origin, destination string) ([]models.Rate, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, apperr.New(apperr.Transient, "rate table unavailable")
	}
	return []models.Rate{{Carrier: "ONE", Origin: origin, Destination: destination, BaseFreight: 500, Currency: "USD"}}, nil
}

func TestQuote_TransientRetries(t *testing.T) {
	recovering := &flakyRates{failures: 2}
	svc, _, _ := newService(t, func(d *Deps) { d.Rates = recovering })
	q, err := svc.Quote(context.Background(), map[string]any{"shipment": decode(t, lowRiskShipment)})
	require.NoError(t, err)
	assert.Equal(t, "ONE", q.Best.Rate.Carrier)
	assert.Equal(t, int32(3), recovering.calls.Load())

	down := &flakyRates{failures: 100}
	svc, _, _ = newService(t, func(d *Deps) { d.Rates = down })
	_, err = svc.Quote(context.Background(), map[string]any{"shipment": decode(t, lowRiskShipment)})
	require.Error(t, err)
	assert.Equal(t, "Service: rate table unavailable", apperr.Public(err))
	assert.Equal(t, int32(4), down.calls.Load())
}

func TestRetryPolicy_DefaultSchedule(t *testing.T) {
	b := DefaultRetryPolicy().backOff()
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 400*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 1600*time.Millisecond, b.NextBackOff())
}

func TestRunRisk_Cancelled(t *testing.T) {
	svc, mem, pub := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunRisk(ctx, decode(t, lowRiskShipment))
	require.Error(t, err)
	assert.Equal(t, "Service: request cancelled", apperr.Public(err))
	_, err = mem.LatestRun(context.Background(), "SHP-S1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int32(0), pub.snapshots.Load())
}

func TestRunRisk_PublishFailureIsNotSurfaced(t *testing.T) {
	failing := &recorder{fail: true}
	svc, mem, _ := newService(t, func(d *Deps) { d.Publisher = failing })
	_, err := svc.RunRisk(context.Background(), decode(t, lowRiskShipment))
	assert.NoError(t, err)
	assert.Equal(t, int32(1), failing.snapshots.Load())
	_, err = mem.LatestRun(context.Background(), "SHP-S1")
	assert.NoError(t, err)
}

type brokenStore struct{ store.Memory }

func (b *brokenStore) SaveRun(context.Context, store.Run) error {
	return errors.New("disk full")
}

func TestRunRisk_PersistenceFailure(t *testing.T) {
	svc, _, _ := newService(t, func(d *Deps) { d.Store = &brokenStore{} })
	_, err := svc.RunRisk(context.Background(), decode(t, lowRiskShipment))
	require.Error(t, err)
	assert.Equal(t, apperr.Service, apperr.KindOf(err))
	assert.Equal(t, "Service: persist risk run", apperr.Public(err))
}

func TestLatestKPI_Errors(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, err := svc.LatestKPI(context.Background(), "SHP-NOPE")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.LatestKPI(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
