// Copyright (c) 2025 BVK Chaitanya

package mt5bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
	"gopkg.in/square/go-jose.v2/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeBridge struct {
	mu sync.Mutex

	orders    []*OrderRequest
	positions []*Position

	status   atomic.Int32
	throttle atomic.Int32
	requests atomic.Int32
}

func (b *fakeBridge) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return false
	}
	var claims jwt.Claims
	if err := parsed.Claims([]byte(testSecret), &claims); err != nil {
		return false
	}
	return claims.Subject == "1001"
}

func (b *fakeBridge) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)
	if !b.authorized(r) {
		http.Error(w, `{"code":401,"message":"bad token"}`, http.StatusUnauthorized)
		return
	}
	if code := b.status.Load(); code != 0 {
		http.Error(w, `{"message":"injected failure"}`, int(code))
		return
	}
	if b.throttle.Load() > 0 {
		b.throttle.Add(-1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
		return
	}

	switch {
	case r.URL.Path == "/api/v1/symbols/EURUSD/tick":
		b.writeJSON(w, &TickResponse{Symbol: "EURUSD", Bid: decimal.RequireFromString("1.1013"), Ask: decimal.RequireFromString("1.1015"), TimeMsc: time.Now().UnixMilli()})
	case r.URL.Path == "/api/v1/symbols/EURUSD/rates":
		var rates []*Rate
		if r.URL.Query().Get("from") == "1736195400" {
			rates = append(rates, &Rate{Time: 1736195400, Close: decimal.RequireFromString("1.1000")})
		}
		b.writeJSON(w, &RatesResponse{Symbol: "EURUSD", Timeframe: "M1", Rates: rates})
	case r.URL.Path == "/api/v1/symbols/EURUSD":
		b.writeJSON(w, &SymbolInfo{Name: "EURUSD", Digits: 5, SessionOpen: 1})
	case r.URL.Path == "/api/v1/positions":
		b.mu.Lock()
		defer b.mu.Unlock()
		b.writeJSON(w, &PositionsResponse{Positions: b.positions})
	case r.URL.Path == "/api/v1/orders" && r.Method == http.MethodPost:
		req := new(OrderRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.orders = append(b.orders, req)
		if req.Position == 0 {
			b.positions = append(b.positions, &Position{Ticket: int64(len(b.orders)), Symbol: req.Symbol, Type: req.Type, Volume: req.Volume})
		} else {
			b.positions = nil
		}
		b.writeJSON(w, &OrderResponse{Retcode: RetcodeDone, Order: int64(len(b.orders)), Volume: req.Volume, Price: req.Price, Comment: "Request executed"})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, h http.Handler, opts *Options) *Client {
	t.Helper()
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)

	if opts == nil {
		opts = new(Options)
	}
	opts.BaseURL = s.URL
	c, err := New("1001", testSecret, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFeed(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, new(fakeBridge), nil)

	tick, err := c.LatestTick(ctx, "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if !tick.Ask.Equal(decimal.RequireFromString("1.1015")) || !tick.Bid.Equal(decimal.RequireFromString("1.1013")) {
		t.Fatalf("unexpected tick %s", tick)
	}

	// 2025-01-07 02:00 IST
	at := time.Unix(1736195400, 0)
	price, ok, err := c.HistoricalClose(ctx, "EURUSD", at)
	if err != nil || !ok || !price.Equal(decimal.RequireFromString("1.1")) {
		t.Fatalf("want close price 1.1, got %s %v %v", price, ok, err)
	}
	if _, ok, err := c.HistoricalClose(ctx, "EURUSD", at.Add(30*time.Minute)); err != nil || ok {
		t.Fatalf("want absent bar, got %v %v", ok, err)
	}
	if _, ok, err := c.HistoricalClose(ctx, "XYZABC", at); err != nil || ok {
		t.Fatalf("unknown symbol bars must be absent, got %v %v", ok, err)
	}

	open, err := c.IsSessionOpen(ctx, "EURUSD")
	if err != nil || !open {
		t.Fatalf("want open session, got %v %v", open, err)
	}
	if _, err := c.IsSessionOpen(ctx, "XYZABC"); !exchange.IsFatal(err) {
		t.Fatalf("want fatal error for unknown symbol, got %v", err)
	}
}

func TestOpenCloseOrders(t *testing.T) {
	ctx := context.Background()
	b := new(fakeBridge)
	c := newTestClient(t, b, nil)

	req := &exchange.OrderRequest{
		ClientOrderID: "id-1",
		Symbol:        "EURUSD",
		Direction:     exchange.Up,
		Volume:        decimal.RequireFromString("0.1"),
		Comment:       "auto trade due to 15-pip up movement for EURUSD",
	}
	result, err := c.OpenPosition(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if result.OrderID != "1" || !result.Price.Equal(decimal.RequireFromString("1.1015")) {
		t.Fatalf("unexpected order result %s", result)
	}

	results, err := c.CloseAllPositions(ctx, "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Direction != exchange.Down {
		t.Fatalf("want one closing sell, got %v", results)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.orders) != 2 {
		t.Fatalf("want 2 orders, got %d", len(b.orders))
	}
	opening, closing := b.orders[0], b.orders[1]
	if opening.Type != OrderTypeBuy || opening.Deviation != 20 || opening.Magic != 123456 || opening.TypeFilling != FillingFOK || opening.TypeTime != TimeGTC {
		t.Fatalf("unexpected open order %+v", opening)
	}
	if closing.Type != OrderTypeSell || closing.Position != 1 || !closing.Price.Equal(decimal.RequireFromString("1.1013")) {
		t.Fatalf("unexpected close order %+v", closing)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ctx := context.Background()

	s := httptest.NewServer(new(fakeBridge))
	defer s.Close()

	bad, err := New("1001", "wrong-secret-wrong-secret-wrong-secret", &Options{BaseURL: s.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer bad.Close()
	if _, err := bad.LatestTick(ctx, "EURUSD"); !exchange.IsFatal(err) {
		t.Fatalf("want fatal error for bad credentials, got %v", err)
	}

	b := new(fakeBridge)
	c := newTestClient(t, b, &Options{BreakerFailures: 2, BreakerTimeout: time.Hour})
	b.status.Store(http.StatusServiceUnavailable)

	for i := 0; i < 2; i++ {
		if _, err := c.LatestTick(ctx, "EURUSD"); !errors.Is(err, exchange.ErrTransient) {
			t.Fatalf("want transient error, got %v", err)
		}
	}
	before := b.requests.Load()
	if _, err := c.LatestTick(ctx, "EURUSD"); !exchange.IsRetryable(err) {
		t.Fatalf("want retryable error from open breaker, got %v", err)
	}
	if b.requests.Load() != before {
		t.Fatalf("open circuit breaker must not send requests")
	}
	if s := c.BreakerState(); s != "open" {
		t.Fatalf("want open breaker, got %s", s)
	}
}

func TestThrottleRetry(t *testing.T) {
	b := new(fakeBridge)
	b.throttle.Store(1)
	c := newTestClient(t, b, nil)

	if _, err := c.LatestTick(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("throttled request must be retried, got %v", err)
	}
	if n := b.requests.Load(); n != 2 {
		t.Fatalf("want 2 requests, got %d", n)
	}
}

func TestWatchTicks(t *testing.T) {
	var upgrader websocket.Upgrader
	b := new(fakeBridge)

	mux := http.NewServeMux()
	mux.Handle("/", b)
	mux.HandleFunc("/api/v1/ticks/stream", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub Message
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != "subscribe" {
			return
		}
		for _, s := range sub.Symbols {
			msg := &Message{Type: "tick", Tick: &TickResponse{
				Symbol:  s,
				Bid:     decimal.RequireFromString("151.20"),
				Ask:     decimal.RequireFromString("151.23"),
				TimeMsc: time.Now().UnixMilli(),
			}}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		conn.ReadMessage()
	})

	c := newTestClient(t, mux, nil)
	receiver, err := c.GetTickUpdates("USDJPY")
	if err != nil {
		t.Fatal(err)
	}
	defer receiver.Close()
	ch, err := topic.ReceiveCh(receiver)
	if err != nil {
		t.Fatal(err)
	}

	c.WatchTicks([]string{"USDJPY"})

	select {
	case tick := <-ch:
		if tick.Symbol != "USDJPY" || !tick.Ask.Equal(decimal.RequireFromString("151.23")) {
			t.Fatalf("unexpected tick %s", tick)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for streamed tick")
	}

	// Fresh streamed tick is served without a REST request.
	before := b.requests.Load()
	tick, err := c.LatestTick(context.Background(), "USDJPY")
	if err != nil {
		t.Fatal(err)
	}
	if !tick.Bid.Equal(decimal.RequireFromString("151.2")) || b.requests.Load() != before {
		t.Fatalf("want cached streamed tick, got %s", tick)
	}
}
