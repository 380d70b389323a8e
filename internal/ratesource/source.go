// Package ratesource supplies rate candidates for a lane, either from a static table or
// from a polled rate service.
package ratesource

import (
	"context"
	"sort"
	"time"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/validate"
)

// Source is the rate candidate suspension point of a pipeline run.
type Source interface {
	Rates(ctx context.Context, origin, destination string) ([]models.Rate, error)
}

type lane struct{ origin, destination string }

func laneOf(origin, destination string) lane {
	return lane{validate.Port(origin), validate.Port(destination)}
}

// Table is an immutable lane index over a set of rates.
type Table struct {
	FetchedAt time.Time
	lanes     map[lane][]models.Rate
	size      int
}

// NewTable indexes rates by lane.
func NewTable(rates []models.Rate, fetchedAt time.Time) *Table {
	t := &Table{FetchedAt: fetchedAt, lanes: map[lane][]models.Rate{}, size: len(rates)}
	for _, r := range rates {
		k := laneOf(r.Origin, r.Destination)
		t.lanes[k] = append(t.lanes[k], r)
	}
	for _, rs := range t.lanes {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Carrier < rs[j].Carrier })
	}
	return t
}

func (t *Table) Len() int { return t.size }

// Lane returns a copy of the rates for a lane, or a NotFound error.
func (t *Table) Lane(origin, destination string) ([]models.Rate, error) {
	k := laneOf(origin, destination)
	rs := t.lanes[k]
	if len(rs) == 0 {
		return nil, apperr.NotFoundf("no rates for lane " + k.origin + "-" + k.destination)
	}
	return append([]models.Rate(nil), rs...), nil
}

// Static serves a fixed table built at start-up.
type Static struct {
	table *Table
}

// NewStatic creates a source over a fixed rate list.
func NewStatic(rates []models.Rate) *Static {
	return &Static{table: NewTable(rates, time.Time{})}
}

// Rates returns the candidates for a lane.
func (s *Static) Rates(ctx context.Context, origin, destination string) ([]models.Rate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.table.Lane(origin, destination)
}
