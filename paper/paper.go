// Copyright (c) 2025 BVK Chaitanya

// Package paper implements a simulated order gateway for dry runs. Orders are
// filled immediately at the latest feed price and positions are kept in
// memory. Without a feed, opens fill at the request's trigger price and
// closes at the last fill price of the symbol.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Position struct {
	Ticket    string
	Symbol    string
	Direction exchange.Direction
	Volume    decimal.Decimal
	Price     decimal.Decimal
	OpenTime  time.Time
}

type Gateway struct {
	// feed is optional.
	feed exchange.Feed

	mu sync.Mutex

	positionsMap map[string][]*Position

	// lastPriceMap holds the last fill price per symbol.
	lastPriceMap map[string]decimal.Decimal

	history []*exchange.OrderResult
}

var _ exchange.Gateway = &Gateway{}

func New(feed exchange.Feed) *Gateway {
	return &Gateway{
		feed:         feed,
		positionsMap: make(map[string][]*Position),
		lastPriceMap: make(map[string]decimal.Decimal),
	}
}

// fillPrice returns the feed price for the direction, or the fallback price
// when the feed is not available.
func (g *Gateway) fillPrice(ctx context.Context, symbol string, d exchange.Direction, fallback decimal.Decimal) decimal.Decimal {
	if g.feed == nil {
		return fallback
	}
	tick, err := g.feed.LatestTick(ctx, symbol)
	if err != nil {
		slog.Warn("could not fetch fill price for paper order (ignored)", "symbol", symbol, "fallback", fallback, "err", err)
		return fallback
	}
	// Buys are filled at the ask and sells at the bid.
	if price := tick.Price(d); price.IsPositive() {
		return price
	}
	return fallback
}

func (g *Gateway) OpenPosition(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResult, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	price := g.fillPrice(ctx, req.Symbol, req.Direction, req.Price)
	if !price.IsPositive() {
		return nil, fmt.Errorf("could not determine fill price for paper order on %s: %w", req.Symbol, exchange.ErrUnavailable)
	}
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastPriceMap[req.Symbol] = price

	pos := &Position{
		Ticket:    uuid.NewString(),
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Volume:    req.Volume,
		Price:     price,
		OpenTime:  now,
	}
	g.positionsMap[req.Symbol] = append(g.positionsMap[req.Symbol], pos)

	result := &exchange.OrderResult{
		OrderID:       uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Direction:     req.Direction,
		Volume:        req.Volume,
		Price:         price,
		Position:      pos.Ticket,
		Comment:       req.Comment,
		ServerTime:    now,
	}
	g.history = append(g.history, result)
	slog.Info("paper position is opened", "order", result)
	return result, nil
}

// CloseAllPositions closes every open position of the symbol with an
// opposite deal.
func (g *Gateway) CloseAllPositions(ctx context.Context, symbol string) ([]*exchange.OrderResult, error) {
	g.mu.Lock()
	positions := g.positionsMap[symbol]
	delete(g.positionsMap, symbol)
	last := g.lastPriceMap[symbol]
	g.mu.Unlock()

	var results []*exchange.OrderResult
	for _, pos := range positions {
		d := pos.Direction.Opposite()
		price := g.fillPrice(ctx, symbol, d, last)
		if !price.IsPositive() {
			price = pos.Price
		}
		last = price
		result := &exchange.OrderResult{
			OrderID:    uuid.NewString(),
			Symbol:     symbol,
			Direction:  d,
			Volume:     pos.Volume,
			Price:      price,
			Position:   pos.Ticket,
			Comment:    fmt.Sprintf("close position %s", pos.Ticket),
			ServerTime: time.Now(),
		}
		results = append(results, result)
	}

	g.mu.Lock()
	g.history = append(g.history, results...)
	if len(results) > 0 {
		g.lastPriceMap[symbol] = last
	}
	g.mu.Unlock()

	slog.Info("paper positions are closed", "symbol", symbol, "count", len(results))
	return results, nil
}

// Positions returns the open positions of the symbol.
func (g *Gateway) Positions(symbol string) []*Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.positionsMap[symbol])
}

// History returns all order results in execution order.
func (g *Gateway) History() []*exchange.OrderResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.history)
}
