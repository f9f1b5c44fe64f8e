// Copyright (c) 2025 BVK Chaitanya

package mt5bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/shopspring/decimal"
)

// LatestTick returns the most recent streamed tick when it is fresh enough and
// fetches the tick from the bridge otherwise.
func (c *Client) LatestTick(ctx context.Context, symbol string) (*exchange.Tick, error) {
	if tick, ok := c.tickMap.Load(symbol); ok && time.Since(tick.Time) <= c.opts.MaxTickAge {
		return tick, nil
	}

	resp := new(TickResponse)
	if err := c.getJSON(ctx, c.endpoint("/api/v1/symbols/"+url.PathEscape(symbol)+"/tick", nil), resp); err != nil {
		return nil, fmt.Errorf("could not get latest tick for %s: %w", symbol, err)
	}
	if !resp.Bid.IsPositive() || !resp.Ask.IsPositive() {
		return nil, fmt.Errorf("latest tick for %s has no prices: %w", symbol, exchange.ErrUnavailable)
	}
	tick := &exchange.Tick{
		Symbol: symbol,
		Bid:    resp.Bid,
		Ask:    resp.Ask,
		Time:   resp.Time(),
	}
	return tick, nil
}

// HistoricalClose returns the close price of the one minute bar that opens at
// the given instant.
func (c *Client) HistoricalClose(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, bool, error) {
	values := url.Values{
		"timeframe": {"M1"},
		"from":      {strconv.FormatInt(at.Unix(), 10)},
		"count":     {"1"},
	}
	resp := new(RatesResponse)
	if err := c.getJSON(ctx, c.endpoint("/api/v1/symbols/"+url.PathEscape(symbol)+"/rates", values), resp); err != nil {
		if errors.Is(err, exchange.ErrUnavailable) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("could not get historical rates for %s: %w", symbol, err)
	}
	for _, r := range resp.Rates {
		if r.Time == at.Unix() && r.Close.IsPositive() {
			return r.Close, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func (c *Client) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	resp := new(SymbolInfo)
	if err := c.getJSON(ctx, c.endpoint("/api/v1/symbols/"+url.PathEscape(symbol), nil), resp); err != nil {
		if errors.Is(err, exchange.ErrUnavailable) {
			// Unknown symbols are a configuration problem.
			return nil, fmt.Errorf("could not get symbol info for %s: %w: %w", symbol, exchange.ErrFatal, err)
		}
		return nil, fmt.Errorf("could not get symbol info for %s: %w", symbol, err)
	}
	return resp, nil
}

// IsSessionOpen returns true if the symbol's trading session is open.
func (c *Client) IsSessionOpen(ctx context.Context, symbol string) (bool, error) {
	info, err := c.SymbolInfo(ctx, symbol)
	if err != nil {
		return false, err
	}
	return info.SessionOpen != 0, nil
}
