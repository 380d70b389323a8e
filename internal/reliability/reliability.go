// Package reliability resolves a carrier's on-time reliability in [0,1].
package reliability

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/risk"
)

// Source is the carrier reliability suspension point of a pipeline run.
type Source interface {
	Reliability(ctx context.Context, carrier string) (float64, error)
}

// Static serves the built-in reference table.
type Static struct {
	tables *risk.Tables
}

// NewStatic creates a source backed by the reference table.
func NewStatic(tables *risk.Tables) *Static {
	return &Static{tables: tables}
}

// Reliability looks the carrier up in the reference table.
func (s *Static) Reliability(ctx context.Context, carrier string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.tables.Reliability(carrier), nil
}

// hashGetter is the slice of the redis client the source needs.
type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// Redis reads reliability from a hash keyed by normalized carrier name. Carriers absent
// from the hash, or with unparsable values, fall back to the reference table.
type Redis struct {
	client   hashGetter
	key      string
	fallback *risk.Tables
	log      *zap.Logger
}

// NewRedis creates a source reading the hash at key, falling back to the table.
func NewRedis(client hashGetter, key string, fallback *risk.Tables, log *zap.Logger) *Redis {
	return &Redis{client: client, key: key, fallback: fallback, log: log}
}

// Dial connects to addr and returns the client alongside the source so callers can close it.
func Dial(addr, password string, db int, key string, fallback *risk.Tables, log *zap.Logger) (*redis.Client, *Redis) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return client, NewRedis(client, key, fallback, log)
}

// Reliability reads the carrier from Redis. A missing field falls back to the table.
func (r *Redis) Reliability(ctx context.Context, carrier string) (float64, error) {
	name := risk.NormalizeCarrier(carrier)
	if name == "" {
		return r.fallback.Reliability(carrier), nil
	}
	raw, err := r.client.HGet(ctx, r.key, name).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return r.fallback.Reliability(carrier), nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case err != nil:
		return 0, apperr.Wrap(apperr.Transient, "reliability store unavailable", err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		r.log.Warn("unparsable carrier reliability", zap.String("carrier", name), zap.String("value", raw))
		return r.fallback.Reliability(carrier), nil
	}
	return math.Max(0, math.Min(1, v)), nil
}
