// Package pipeline orchestrates one scoring or quoting run across the stages.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/kafka"
	"github.com/refset/freight-risk-quoting/internal/kpi"
	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/pricing"
	"github.com/refset/freight-risk-quoting/internal/ratesource"
	"github.com/refset/freight-risk-quoting/internal/reliability"
	"github.com/refset/freight-risk-quoting/internal/risk"
	"github.com/refset/freight-risk-quoting/internal/scoring"
	"github.com/refset/freight-risk-quoting/internal/store"
	"github.com/refset/freight-risk-quoting/internal/validate"
)

const tracerName = "github.com/refset/freight-risk-quoting/internal/pipeline"

// Deps wires a Service. Nil optional fields get in-memory or no-op defaults.
type Deps struct {
	Tables      *risk.Tables
	Scoring     scoring.Config
	Pricing     pricing.Config
	Rates       ratesource.Source
	Reliability reliability.Source
	Store       store.Store
	Publisher   kafka.Publisher
	Retry       RetryPolicy
	Log         *zap.Logger

	Now   func() time.Time
	NewID func() string
}

// Service runs the pipeline. It holds no per-request state and is safe for concurrent use.
type Service struct {
	tables      *risk.Tables
	agg         *scoring.Aggregator
	kpis        *kpi.Builder
	pricer      *pricing.Engine
	rates       ratesource.Source
	reliability reliability.Source
	store       store.Store
	publisher   kafka.Publisher
	retry       RetryPolicy
	log         *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

// New builds a Service, filling nil dependencies with in-process defaults.
func New(d Deps) *Service {
	if d.Tables == nil {
		d.Tables = risk.DefaultTables()
	}
	if d.Rates == nil {
		d.Rates = ratesource.NewStatic(nil)
	}
	if d.Reliability == nil {
		d.Reliability = reliability.NewStatic(d.Tables)
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Publisher == nil {
		d.Publisher = kafka.Discard{}
	}
	if d.Retry.MaxTries == 0 {
		d.Retry = DefaultRetryPolicy()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Service{
		tables:      d.Tables,
		agg:         scoring.New(d.Scoring),
		kpis:        kpi.NewBuilder(d.Tables),
		pricer:      pricing.New(d.Pricing, d.Tables),
		rates:       d.Rates,
		reliability: d.Reliability,
		store:       d.Store,
		publisher:   d.Publisher,
		retry:       d.Retry,
		log:         d.Log,
		tracer:      otel.Tracer(tracerName),
		now:         d.Now,
		newID:       d.NewID,
	}
}

// RiskResult is the data of a /risk/run envelope.
type RiskResult struct {
	Snapshot models.RiskSnapshot `json:"snapshot"`
	Drivers  []models.RiskDriver `json:"drivers"`
	KPI      models.KPI          `json:"kpi"`
}

// KPIResult is the body of a KPI lookup.
type KPIResult struct {
	KPI models.KPI `json:"kpi"`
}

func shipmentPayload(p map[string]any) map[string]any {
	if inner, ok := p["shipment"].(map[string]any); ok {
		return inner
	}
	return p
}

// RunRisk scores a shipment payload, persists the run and announces it.
func (s *Service) RunRisk(ctx context.Context, payload map[string]any) (_ RiskResult, err error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.RunRisk")
	defer func() { s.finish(span, err) }()

	shipment := validate.Shipment(shipmentPayload(payload))
	span.SetAttributes(attribute.String("shipment.id", shipment.ID))

	snap, k, err := s.score(ctx, shipment)
	if err != nil {
		return RiskResult{}, err
	}
	if err := s.persistRun(ctx, snap, k); err != nil {
		return RiskResult{}, err
	}
	s.publish(ctx, func(pctx context.Context) error { return s.publisher.PublishSnapshot(pctx, snap, k) })

	return RiskResult{Snapshot: snap, Drivers: snap.Drivers, KPI: k}, nil
}

// Quote scores the shipment in a {shipment, rateCandidates} payload and prices it. With
// no candidates in the payload, the rate source is asked for the shipment's lane.
func (s *Service) Quote(ctx context.Context, payload map[string]any) (_ models.Quote, err error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.Quote")
	defer func() { s.finish(span, err) }()

	shipment := validate.Shipment(shipmentPayload(payload))
	candidates := validate.Rates(first(payload, "rateCandidates", "rate_candidates", "rates"))
	requestID := validate.String(first(payload, "requestId", "request_id"), "")
	if requestID == "" {
		requestID = s.newID()
	}
	span.SetAttributes(attribute.String("shipment.id", shipment.ID), attribute.String("request.id", requestID))

	snap, k, err := s.score(ctx, shipment)
	if err != nil {
		return models.Quote{}, err
	}

	if len(candidates) == 0 {
		candidates, err = s.laneRates(ctx, shipment)
		if err != nil {
			return models.Quote{}, err
		}
	}

	_, pspan := s.tracer.Start(ctx, "pricing")
	q, err := s.pricer.Quote(requestID, shipment, snap, candidates, s.now())
	pspan.End()
	if err != nil {
		return models.Quote{}, err
	}

	if err := s.persistQuote(ctx, snap, k, q); err != nil {
		return models.Quote{}, err
	}
	s.publish(ctx, func(pctx context.Context) error { return s.publisher.PublishSnapshot(pctx, snap, k) })
	s.publish(ctx, func(pctx context.Context) error { return s.publisher.PublishQuote(pctx, q) })
	return q, nil
}

// LatestKPI returns the KPIs of the most recent persisted run for a shipment.
func (s *Service) LatestKPI(ctx context.Context, shipmentID string) (_ KPIResult, err error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.LatestKPI")
	defer func() { s.finish(span, err) }()

	if !models.Known(shipmentID) {
		return KPIResult{}, apperr.Validationf("shipment id required")
	}
	run, err := s.store.LatestRun(ctx, shipmentID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return KPIResult{}, err
		}
		return KPIResult{}, serviceErr("load risk run", err)
	}
	return KPIResult{KPI: run.KPI}, nil
}

// score runs stages 2-5. The reliability lookup is its only suspension point.
func (s *Service) score(ctx context.Context, shipment models.Shipment) (models.RiskSnapshot, models.KPI, error) {
	carrier := shipment.Transport.PrimaryCarrier()
	rctx, rspan := s.tracer.Start(ctx, "reliability")
	rel, err := retry(rctx, s.retry, s.log, "reliability", func() (float64, error) {
		return s.reliability.Reliability(rctx, carrier)
	})
	rspan.End()
	if err != nil {
		return models.RiskSnapshot{}, models.KPI{}, err
	}

	_, span := s.tracer.Start(ctx, "scoring")
	defer span.End()
	modules := risk.Compute(risk.Input{Shipment: shipment, Reliability: rel, Tables: s.tables})
	snap, err := s.agg.Aggregate(shipment.ID, modules, s.now())
	if err != nil {
		return models.RiskSnapshot{}, models.KPI{}, err
	}
	span.SetAttributes(attribute.Float64("risk.total", snap.TotalRisk), attribute.Int("risk.drivers", len(snap.Drivers)))
	return snap, s.kpis.Build(shipment, snap, rel), nil
}

func (s *Service) laneRates(ctx context.Context, shipment models.Shipment) ([]models.Rate, error) {
	ctx, span := s.tracer.Start(ctx, "rates")
	defer span.End()
	return retry(ctx, s.retry, s.log, "rates", func() ([]models.Rate, error) {
		return s.rates.Rates(ctx, shipment.OriginPort, shipment.DestinationPort)
	})
}

func runOf(snap models.RiskSnapshot, k models.KPI) store.Run {
	return store.Run{
		ShipmentID: snap.ShipmentID,
		CreatedAt:  snap.Timestamp,
		Digest:     snap.Digest,
		Snapshot:   snap,
		KPI:        k,
	}
}

func (s *Service) persistRun(ctx context.Context, snap models.RiskSnapshot, k models.KPI) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if err := s.store.SaveRun(ctx, runOf(snap, k)); err != nil {
		return serviceErr("persist risk run", err)
	}
	return nil
}

// persistQuote stores the quote and its run together. A replayed request id is the
// caller's mistake and keeps its Validation kind.
func (s *Service) persistQuote(ctx context.Context, snap models.RiskSnapshot, k models.KPI, q models.Quote) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	err := s.store.SaveQuote(ctx, runOf(snap, k), q)
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) == apperr.Validation:
		return err
	}
	return serviceErr("persist quote", err)
}

const publishTimeout = 5 * time.Second

// publish is best-effort: failures are logged and never reach the caller. It outlives
// request cancellation because the run is already persisted.
func (s *Service) publish(ctx context.Context, fn func(context.Context) error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := fn(pctx); err != nil {
		s.log.Warn("event publication failed", zap.Error(err))
	}
}

func (s *Service) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
		if apperr.KindOf(err) == apperr.Service {
			s.log.Error("pipeline run failed", zap.Error(err))
		}
	}
	span.End()
}

func first(p map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			return v
		}
	}
	return nil
}

func cancelled(err error) error {
	return apperr.Wrap(apperr.Service, "request cancelled", err)
}

func serviceErr(detail string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.Service {
		return err
	}
	return apperr.Wrap(apperr.Service, detail, err)
}
