package store

import (
	"context"
	"sync"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
)

type quoteKey struct{ shipmentID, requestID string }

// Memory keeps runs and quotes in process. It is the default backend and the one the
// CLI uses.
type Memory struct {
	mu     sync.RWMutex
	runs   map[string][]Run
	quotes map[quoteKey]models.Quote
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{runs: map[string][]Run{}, quotes: map[quoteKey]models.Quote{}}
}

// SaveRun appends a run. A second run with the same (shipment, timestamp) is rejected.
func (m *Memory) SaveRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRun(run); err != nil {
		return err
	}
	m.runs[run.ShipmentID] = append(m.runs[run.ShipmentID], run)
	return nil
}

func (m *Memory) checkRun(run Run) error {
	for _, r := range m.runs[run.ShipmentID] {
		if r.CreatedAt.Equal(run.CreatedAt) {
			return apperr.New(apperr.Service, "risk run already recorded")
		}
	}
	return nil
}

// SaveQuote checks both keys before writing either row.
func (m *Memory) SaveQuote(ctx context.Context, run Run, q models.Quote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := quoteKey{q.ShipmentID, q.RequestID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quotes[k]; ok {
		return duplicateQuote(q)
	}
	if err := m.checkRun(run); err != nil {
		return err
	}
	m.runs[run.ShipmentID] = append(m.runs[run.ShipmentID], run)
	m.quotes[k] = q
	return nil
}

func duplicateQuote(q models.Quote) error {
	return apperr.Validationf("quote already recorded for request " + q.RequestID)
}

// LatestRun returns the run with the greatest timestamp.
func (m *Memory) LatestRun(ctx context.Context, shipmentID string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Run
	for i, r := range m.runs[shipmentID] {
		if latest == nil || !r.CreatedAt.Before(latest.CreatedAt) {
			latest = &m.runs[shipmentID][i]
		}
	}
	if latest == nil {
		return Run{}, apperr.NotFoundf("no risk run for shipment " + shipmentID)
	}
	return *latest, nil
}

// Quote returns a recorded quote.
func (m *Memory) Quote(shipmentID, requestID string) (models.Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[quoteKey{shipmentID, requestID}]
	return q, ok
}

func (m *Memory) Close() {}
