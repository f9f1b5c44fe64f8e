// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Feed provides live and historical prices for instruments.
type Feed interface {
	// LatestTick returns the most recent bid/ask quote for the symbol.
	LatestTick(ctx context.Context, symbol string) (*Tick, error)

	// HistoricalClose returns the closing price of the bar that starts at the
	// given instant. Absence of the bar is reported with a false second result
	// and a nil error; errors are reserved for failures.
	HistoricalClose(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, bool, error)

	// IsSessionOpen returns true if the symbol is currently tradeable.
	IsSessionOpen(ctx context.Context, symbol string) (bool, error)
}

// Gateway executes market orders. Results are reported to the caller, but
// callers are not expected to roll back their own state on failures.
type Gateway interface {
	OpenPosition(ctx context.Context, req *OrderRequest) (*OrderResult, error)

	CloseAllPositions(ctx context.Context, symbol string) ([]*OrderResult, error)
}
