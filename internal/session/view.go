package session

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"botrader/internal/indicator"
	"botrader/internal/model"
	"botrader/internal/orderbook"
)

// View is the read model rendered by presentation layers. It is a
// self-contained copy; mutating it does not affect the session.
type View struct {
	Version          uint64                    `json:"version"`
	GeneratedAt      time.Time                 `json:"generatedAt"`
	Symbols          []model.TradingPair       `json:"symbols"`
	SelectedSymbol   string                    `json:"selectedSymbol"`
	ConnectionStatus model.ConnectionStatus    `json:"connectionStatus"`
	Candles          []model.Candle            `json:"candles"`
	RSI              []indicator.Point         `json:"rsi"`
	MACD             []indicator.MACDPoint     `json:"macd"`
	Price            *float64                  `json:"price,omitempty"`
	PreviousPrice    *float64                  `json:"previousPrice,omitempty"`
	Balance          decimal.Decimal           `json:"balance"`
	PnL              decimal.Decimal           `json:"pnl"`
	ActiveOrders     []OrderView               `json:"activeOrders"`
	TradeHistory     []model.TradeHistoryEntry `json:"tradeHistory"`
	Summary          orderbook.Summary         `json:"summary"`
	Notifications    []NotificationView        `json:"notifications"`
}

// OrderView is an active order with its live projection.
type OrderView struct {
	model.ActiveOrder
	RemainingMs int64 `json:"remainingMs"`
	// InTheMoney is set when the order's market is selected and priced.
	InTheMoney *bool `json:"inTheMoney,omitempty"`
}

// NotificationView carries the presentation hints of a notification.
type NotificationView struct {
	model.Notification
	Style        model.Style `json:"style"`
	DisplayForMs int64       `json:"displayForMs"`
}

// View builds the read model at now.
func (s *Session) View(now time.Time) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Version:          s.version,
		GeneratedAt:      now,
		Symbols:          append([]model.TradingPair(nil), s.cfg.Symbols...),
		SelectedSymbol:   s.selected,
		ConnectionStatus: s.status,
		Candles:          s.ledger.Candles(),
		RSI:              s.indicators.RSI,
		MACD:             s.indicators.MACD,
		Balance:          s.book.Balance(),
		PnL:              s.book.PnL(),
		TradeHistory:     s.book.History(),
		Summary:          s.book.Summary(),
	}

	price, hasPrice := s.ledger.Price()
	if hasPrice {
		v.Price = &price
	}
	if prev, ok := s.ledger.PreviousPrice(); ok {
		v.PreviousPrice = &prev
	}

	var exit decimal.NullDecimal
	if hasPrice {
		if d, err := model.PriceFromFloat(price); err == nil {
			exit = decimal.NewNullDecimal(d)
		}
	}

	active := s.book.Active()
	v.ActiveOrders = make([]OrderView, 0, len(active))
	for _, o := range active {
		ov := OrderView{ActiveOrder: o}
		if rem := o.Expiry.Sub(now); rem > 0 {
			ov.RemainingMs = rem.Milliseconds()
		}
		if exit.Valid && o.Symbol == s.selected {
			itm := o.Wins(exit.Decimal)
			ov.InTheMoney = &itm
		}
		v.ActiveOrders = append(v.ActiveOrders, ov)
	}
	sort.SliceStable(v.ActiveOrders, func(i, j int) bool {
		return v.ActiveOrders[i].Expiry.Before(v.ActiveOrders[j].Expiry)
	})

	notes := s.notes.List()
	v.Notifications = make([]NotificationView, len(notes))
	for i, n := range notes {
		v.Notifications[i] = NotificationView{
			Notification: n,
			Style:        n.Variant.Style(),
			DisplayForMs: n.DisplayFor().Milliseconds(),
		}
	}
	return v
}
