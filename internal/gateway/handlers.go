package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"botrader/internal/model"
	"botrader/internal/orderbook"
	"botrader/internal/session"
)

// DefaultPayout is used when an order request omits the payout.
var DefaultPayout = decimal.RequireFromString("0.85")

// MaxExpiryMinutes is the longest expiry an order may request (one day).
const MaxExpiryMinutes = 24 * 60

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// NewRouter returns the HTTP handler for the gateway API.
func NewRouter(sess *session.Session, hub *Hub) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, sess, hub)
	return withCORS(mux)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, sess *session.Session, hub *Hub) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "error", err)
			return
		}
		hub.Attach(conn)
	})

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sess.View(hub.now()))
	})

	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		pr, err := req.toPlaceRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		order, err := sess.PlaceOrder(pr)
		if err != nil {
			writeError(w, orderErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, order)
	})

	mux.HandleFunc("PUT /api/symbol", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Symbol string `json:"symbol"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := sess.SetSelectedSymbol(req.Symbol); err != nil {
			if errors.Is(err, session.ErrUnknownSymbol) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"selectedSymbol": sess.Selected()})
	})

	mux.HandleFunc("DELETE /api/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !sess.DismissNotification(r.PathValue("id")) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /api/history", func(w http.ResponseWriter, r *http.Request) {
		sess.ClearTradeHistory()
		w.WriteHeader(http.StatusNoContent)
	})
}

// placeOrderRequest is the body of POST /api/orders.
type placeOrderRequest struct {
	Direction     model.Direction  `json:"direction"`
	Amount        decimal.Decimal  `json:"amount"`
	ExpiryMinutes int              `json:"expiryMinutes"`
	Payout        *decimal.Decimal `json:"payout,omitempty"`
}

var (
	errBadDirection = errors.New("direction must be CALL or PUT")
	errBadExpiry    = fmt.Errorf("expiryMinutes must be between 1 and %d", MaxExpiryMinutes)
	errBadPayout    = errors.New("payout must be in (0, 1]")
)

// toPlaceRequest checks the request shape. Amount and balance checks belong
// to the order book.
func (p placeOrderRequest) toPlaceRequest() (orderbook.PlaceRequest, error) {
	if !p.Direction.Valid() {
		return orderbook.PlaceRequest{}, errBadDirection
	}
	if p.ExpiryMinutes <= 0 || p.ExpiryMinutes > MaxExpiryMinutes {
		return orderbook.PlaceRequest{}, errBadExpiry
	}
	payout := DefaultPayout
	if p.Payout != nil {
		payout = *p.Payout
	}
	if !payout.IsPositive() || payout.GreaterThan(decimal.NewFromInt(1)) {
		return orderbook.PlaceRequest{}, errBadPayout
	}
	return orderbook.PlaceRequest{
		Direction: p.Direction,
		Amount:    p.Amount,
		Expiry:    time.Duration(p.ExpiryMinutes) * time.Minute,
		Payout:    payout,
	}, nil
}

func orderErrorStatus(err error) int {
	switch {
	case errors.Is(err, orderbook.ErrNoLivePrice):
		return http.StatusConflict
	case errors.Is(err, orderbook.ErrInvalidAmount),
		errors.Is(err, orderbook.ErrInvalidExpiry),
		errors.Is(err, orderbook.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
