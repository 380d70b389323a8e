// Package api exposes the pipeline over HTTP. Every response body is an envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/envelope"
	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/pipeline"
)

const maxBodyBytes = 1 << 20

// Pipeline is the part of pipeline.Service the handlers call.
type Pipeline interface {
	RunRisk(ctx context.Context, payload map[string]any) (pipeline.RiskResult, error)
	Quote(ctx context.Context, payload map[string]any) (models.Quote, error)
	LatestKPI(ctx context.Context, shipmentID string) (pipeline.KPIResult, error)
}

// Server serves the pipeline API.
type Server struct {
	svc     Pipeline
	log     *zap.Logger
	limiter *RateLimiter
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit enables per-IP rate limiting. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = NewRateLimiter(rps, burst)
		}
	}
}

// WithClock sets the clock used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a new API server.
func NewServer(svc Pipeline, log *zap.Logger, opts ...Option) *Server {
	s := &Server{svc: svc, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler wrapped in request-id, access log, rate limit and
// tracing middleware, outermost first.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /risk/run", s.handleRiskRun)
	mux.HandleFunc("POST /pricing/quote", s.handleQuote)
	mux.HandleFunc("GET /kpi/{shipmentId}", s.handleKPI)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError[struct{}](w, http.StatusNotFound, apperr.NotFoundf("no route for "+r.Method+" "+r.URL.Path), s.now())
	})

	var h http.Handler = mux
	h = WithTracing(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(s.now)(h)
	}
	h = WithAccessLog(s.log)(h)
	return WithRequestID(h)
}

func writeJSON[T any](w http.ResponseWriter, status int, env envelope.Envelope[T]) {
	body, err := envelope.Marshal(env)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = envelope.Marshal(envelope.Fail[T](apperr.New(apperr.Service, ""), env.TS.Time))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError[T any](w http.ResponseWriter, status int, err error, now time.Time) {
	writeJSON(w, status, envelope.Fail[T](err, now))
}

func respond[T any](s *Server, w http.ResponseWriter, r *http.Request, data T, err error) {
	if err != nil && apperr.KindOf(err) == apperr.Service {
		s.log.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, apperr.HTTPStatus(err), envelope.From(data, err, s.now()))
}

func decodeBody(r *http.Request, w http.ResponseWriter) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return nil, apperr.Validationf("request body too large")
		case errors.Is(err, io.EOF):
			return nil, apperr.Validationf("empty request body")
		}
		return nil, apperr.Wrap(apperr.Validation, "malformed JSON body", err)
	}
	m, ok := body.(map[string]any)
	if !ok {
		return nil, apperr.Validationf("request body must be a JSON object")
	}
	return m, nil
}

func (s *Server) handleRiskRun(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r, w)
	if err != nil {
		respond(s, w, r, pipeline.RiskResult{}, err)
		return
	}
	res, err := s.svc.RunRisk(r.Context(), payload)
	respond(s, w, r, res, err)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r, w)
	if err != nil {
		respond(s, w, r, models.Quote{}, err)
		return
	}
	if _, ok := payload["requestId"]; !ok {
		payload["requestId"] = RequestIDFrom(r.Context())
	}
	q, err := s.svc.Quote(r.Context(), payload)
	respond(s, w, r, q, err)
}

func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.LatestKPI(r.Context(), r.PathValue("shipmentId"))
	respond(s, w, r, res, err)
}

type health struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope.OK(health{Status: "ok"}, s.now()))
}
