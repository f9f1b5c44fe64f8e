// Copyright (c) 2025 BVK Chaitanya

package mt5bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/bvk/pipwatch/exchange"
)

func orderType(d exchange.Direction) string {
	if d == exchange.Down {
		return OrderTypeSell
	}
	return OrderTypeBuy
}

func (c *Client) sendOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	resp := new(OrderResponse)
	if err := c.postJSON(ctx, c.endpoint("/api/v1/orders", nil), req, resp); err != nil {
		return nil, err
	}
	if resp.Retcode != RetcodeDone {
		return resp, fmt.Errorf("order failed for %s with retcode %d (%s)", req.Symbol, resp.Retcode, resp.Comment)
	}
	return resp, nil
}

// OpenPosition sends a fill-or-kill market deal at the current ask or bid
// price.
func (c *Client) OpenPosition(ctx context.Context, r *exchange.OrderRequest) (*exchange.OrderResult, error) {
	if err := r.Check(); err != nil {
		return nil, err
	}
	tick, err := c.LatestTick(ctx, r.Symbol)
	if err != nil {
		return nil, err
	}

	req := &OrderRequest{
		Action:      ActionDeal,
		Symbol:      r.Symbol,
		Volume:      r.Volume,
		Type:        orderType(r.Direction),
		Price:       tick.Price(r.Direction),
		Deviation:   c.opts.Deviation,
		Magic:       c.opts.Magic,
		Comment:     r.Comment,
		TypeTime:    TimeGTC,
		TypeFilling: FillingFOK,
		ClientID:    r.ClientOrderID,
	}
	resp, err := c.sendOrder(ctx, req)
	if err != nil {
		slog.Error("could not open position", "symbol", r.Symbol, "direction", r.Direction, "err", err)
		return nil, err
	}
	result := &exchange.OrderResult{
		OrderID:       strconv.FormatInt(resp.Order, 10),
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Direction:     r.Direction,
		Volume:        resp.Volume,
		Price:         resp.Price,
		Comment:       resp.Comment,
		ServerTime:    time.Now(),
	}
	return result, nil
}

func (c *Client) ListPositions(ctx context.Context, symbol string) ([]*Position, error) {
	var values url.Values
	if symbol != "" {
		values = url.Values{"symbol": {symbol}}
	}
	resp := new(PositionsResponse)
	if err := c.getJSON(ctx, c.endpoint("/api/v1/positions", values), resp); err != nil {
		if errors.Is(err, exchange.ErrUnavailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list positions: %w", err)
	}
	return resp.Positions, nil
}

// CloseAllPositions closes every open position of the symbol with an opposite
// deal. Positions are attempted independently; returned error joins all
// failures.
func (c *Client) CloseAllPositions(ctx context.Context, symbol string) ([]*exchange.OrderResult, error) {
	positions, err := c.ListPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var results []*exchange.OrderResult
	var errs []error
	for _, pos := range positions {
		if pos.Symbol != symbol {
			continue
		}
		d := exchange.Down
		if pos.Type == OrderTypeSell {
			d = exchange.Up
		}
		tick, err := c.LatestTick(ctx, symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		req := &OrderRequest{
			Action:      ActionDeal,
			Symbol:      symbol,
			Volume:      pos.Volume,
			Type:        orderType(d),
			Price:       tick.Price(d),
			Deviation:   c.opts.Deviation,
			Magic:       c.opts.Magic,
			Comment:     "Close trade",
			TypeTime:    TimeGTC,
			TypeFilling: FillingFOK,
			Position:    pos.Ticket,
		}
		resp, err := c.sendOrder(ctx, req)
		if err != nil {
			slog.Error("could not close position", "symbol", symbol, "ticket", pos.Ticket, "err", err)
			errs = append(errs, fmt.Errorf("position %d: %w", pos.Ticket, err))
			continue
		}
		results = append(results, &exchange.OrderResult{
			OrderID:    strconv.FormatInt(resp.Order, 10),
			Symbol:     symbol,
			Direction:  d,
			Volume:     resp.Volume,
			Price:      resp.Price,
			Position:   strconv.FormatInt(pos.Ticket, 10),
			Comment:    resp.Comment,
			ServerTime: time.Now(),
		})
	}
	return results, errors.Join(errs...)
}
