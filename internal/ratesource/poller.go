package ratesource

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
)

type fetcher interface {
	AllRates(ctx context.Context) ([]models.Rate, error)
}

// Poller keeps an immutable snapshot of the rate service table. Readers load the
// current snapshot without locking; each poll swaps in a new one.
type Poller struct {
	client   fetcher
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
	table    atomic.Pointer[Table]
}

// NewPoller creates a new poller refreshing every interval.
func NewPoller(client fetcher, interval time.Duration, log *zap.Logger) *Poller {
	return &Poller{client: client, interval: interval, log: log, now: time.Now}
}

// Poll fetches the full table and publishes it. A failed poll keeps the previous snapshot.
func (p *Poller) Poll(ctx context.Context) error {
	rates, err := p.client.AllRates(ctx)
	if err != nil {
		return err
	}
	t := NewTable(rates, p.now())
	p.table.Store(t)
	p.log.Debug("rate table refreshed", zap.Int("rates", t.Len()))
	return nil
}

// Run polls immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.Poll(ctx); err != nil {
		p.log.Warn("initial rate poll failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info("rate poller stopped")
			return nil
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.log.Warn("rate poll failed", zap.Error(err))
			}
		}
	}
}

// Snapshot returns the current table, or nil before the first successful poll.
func (p *Poller) Snapshot() *Table {
	return p.table.Load()
}

// Rates serves a lane from the current snapshot.
func (p *Poller) Rates(ctx context.Context, origin, destination string) ([]models.Rate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := p.table.Load()
	if t == nil {
		return nil, apperr.New(apperr.Transient, "rate table not loaded")
	}
	return t.Lane(origin, destination)
}
