package session

import (
	"context"
	"time"

	"botrader/internal/feed"
)

// Handle applies one feed event. Returns false for stale or unknown events.
func (s *Session) Handle(ev feed.Event) bool {
	switch ev.Kind {
	case feed.EventHistory:
		return s.OnHistoryBootstrap(ev.Symbol, ev.Candles, ev.Fallback)
	case feed.EventCandle:
		return s.OnTick(ev.Symbol, ev.Candle)
	case feed.EventStatus:
		return s.OnConnectionChange(ev.Symbol, ev.Status)
	}
	return false
}

// Run consumes feed events and drives the fallback settlement ticker until
// ctx is cancelled or events is closed. Each event is applied to completion
// before the next one is read.
func (s *Session) Run(ctx context.Context, events <-chan feed.Event) error {
	ticker := time.NewTicker(s.cfg.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Handle(ev)
		case <-ticker.C:
			if n := s.SettleDue(s.now()); n > 0 {
				s.log.Debug("fallback settlement", "settled", n)
			}
		}
	}
}
