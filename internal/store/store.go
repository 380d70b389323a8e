// Package store persists risk runs and quotes. Both tables are append-only.
package store

import (
	"context"
	"time"

	"github.com/refset/freight-risk-quoting/internal/models"
)

// Run is one persisted scoring run, keyed by (ShipmentID, CreatedAt).
type Run struct {
	ShipmentID string              `json:"shipmentId"`
	CreatedAt  time.Time           `json:"createdAt"`
	Digest     string              `json:"digest"`
	Snapshot   models.RiskSnapshot `json:"snapshot"`
	KPI        models.KPI          `json:"kpi"`
}

// Store is the append-only persistence boundary of the pipeline.
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	// SaveQuote records a quote together with the run it was priced from: both rows are
	// written or neither is. A repeated (shipment, request id) is a Validation error.
	SaveQuote(ctx context.Context, run Run, q models.Quote) error
	// LatestRun returns the most recent run for a shipment or a NotFound error.
	LatestRun(ctx context.Context, shipmentID string) (Run, error)
	Close()
}
