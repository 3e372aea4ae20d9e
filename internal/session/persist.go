package session

import (
	"context"
	"log/slog"
	"time"

	"botrader/internal/metrics"
	"botrader/internal/model"
)

// Persister writes the trade history snapshot to a store whenever a change
// reports that the history changed.
type Persister struct {
	session *Session
	store   model.HistoryStore
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	timeout time.Duration
	log     *slog.Logger
}

// NewPersister creates a persister. metrics and health may be nil.
func NewPersister(s *Session, store model.HistoryStore, m *metrics.Metrics, h *metrics.HealthStatus) *Persister {
	return &Persister{
		session: s,
		store:   store,
		metrics: m,
		health:  h,
		timeout: 5 * time.Second,
		log:     slog.Default().With("component", "persister"),
	}
}

// Run saves on every history change until ctx is cancelled, then writes a
// final snapshot so changes dropped by a full subscriber queue are not lost.
func (p *Persister) Run(ctx context.Context) {
	changes := p.session.Changes().Subscribe()
	defer p.session.Changes().Unsubscribe(changes)

	for {
		select {
		case <-ctx.Done():
			_ = p.save(context.Background())
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !c.HistoryChanged {
				continue
			}
			_ = p.save(ctx)
		}
	}
}

// Flush writes the current snapshot immediately.
func (p *Persister) Flush(ctx context.Context) error {
	return p.save(ctx)
}

func (p *Persister) save(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap := p.session.Snapshot()
	start := time.Now()
	err := p.store.Save(ctx, snap)
	p.metrics.ObserveHistorySave(time.Since(start), err)
	if p.health != nil {
		p.health.SetStoreOK(err == nil)
	}
	if err != nil {
		p.log.Error("history save failed", "entries", len(snap.TradeHistory), "error", err)
		return err
	}
	p.log.Debug("history saved", "entries", len(snap.TradeHistory))
	return nil
}
