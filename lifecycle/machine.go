// Copyright (c) 2025 BVK Chaitanya

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/idgen"
	"github.com/bvk/pipwatch/tracker"
	"github.com/shopspring/decimal"
)

type Options struct {
	// Volume is the order size in lots.
	Volume decimal.Decimal

	// Timeout bounds each gateway call.
	Timeout time.Duration
}

func (v *Options) setDefaults() {
	if v.Volume.IsZero() {
		v.Volume = decimal.New(1, -1)
	}
	if v.Timeout == 0 {
		v.Timeout = 10 * time.Second
	}
}

func (v *Options) Check() error {
	if !v.Volume.IsPositive() {
		return fmt.Errorf("order volume must be positive: %w", os.ErrInvalid)
	}
	if v.Timeout < 0 {
		return fmt.Errorf("gateway timeout cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

// Outcome reports the result of applying one crossing event.
type Outcome struct {
	Before Status
	After  Status
	Action Action

	Orders []*exchange.OrderResult
}

// Machine owns the trade status for a single instrument and executes the
// order actions through a gateway. Machine is not safe for concurrent use; it
// is owned by exactly one monitor.
type Machine struct {
	symbol string

	opts Options

	gateway exchange.Gateway

	status Status

	ids *idgen.Generator
}

func NewMachine(symbol string, gateway exchange.Gateway, opts *Options) (*Machine, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil: %w", os.ErrInvalid)
	}
	m := &Machine{
		symbol:  symbol,
		opts:    *opts,
		gateway: gateway,
		ids:     idgen.New(symbol, 0),
	}
	return m, nil
}

func (m *Machine) Status() Status {
	return m.status
}

// SetSeed derives client order ids from the seed. It is used when a new
// trading day begins; trade status carries over because broker positions do.
func (m *Machine) SetSeed(seed string) {
	m.ids = idgen.New(path.Join(m.symbol, seed), 0)
}

// Apply advances the trade status with the crossing event and performs the
// resulting order action. Status transition is committed before the order is
// sent; an order failure is returned wrapped with exchange.ErrInconsistent
// and the status is not rolled back.
func (m *Machine) Apply(ctx context.Context, event *tracker.Event) (*Outcome, error) {
	if event.Symbol != m.symbol {
		return nil, fmt.Errorf("event for %q cannot be applied to %q: %w", event.Symbol, m.symbol, os.ErrInvalid)
	}

	before := m.status
	after, action := Next(before, event.Direction)
	m.status = after

	outcome := &Outcome{
		Before: before,
		After:  after,
		Action: action,
	}
	if before != after || action != ActionNone {
		slog.Info("trade status updated", "symbol", m.symbol, "direction", event.Direction, "before", before, "after", after, "action", action)
	}

	switch action {
	case ActionOpen:
		req := &exchange.OrderRequest{
			ClientOrderID: m.ids.NextID().String(),
			Symbol:        m.symbol,
			Direction:     event.Direction,
			Volume:        m.opts.Volume,
			Price:         event.CurrentPrice,
			Comment:       fmt.Sprintf("auto trade due to %d-pip %s movement for %s", event.PipDifference, event.Direction, m.symbol),
		}
		gctx, gcancel := context.WithTimeout(ctx, m.opts.Timeout)
		defer gcancel()

		result, err := m.gateway.OpenPosition(gctx, req)
		if err != nil {
			slog.Error("could not open position (status is not reverted)", "symbol", m.symbol, "direction", event.Direction, "err", err)
			return outcome, fmt.Errorf("could not open %s position for %s: %w: %w", event.Direction, m.symbol, exchange.ErrInconsistent, err)
		}
		outcome.Orders = []*exchange.OrderResult{result}

	case ActionClose:
		gctx, gcancel := context.WithTimeout(ctx, m.opts.Timeout)
		defer gcancel()

		results, err := m.gateway.CloseAllPositions(gctx, m.symbol)
		outcome.Orders = results
		if err != nil {
			slog.Error("could not close positions (status is not reverted)", "symbol", m.symbol, "err", err)
			return outcome, fmt.Errorf("could not close positions for %s: %w: %w", m.symbol, exchange.ErrInconsistent, err)
		}
	}
	return outcome, nil
}
