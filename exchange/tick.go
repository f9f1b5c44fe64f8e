// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Tick struct {
	Symbol string

	Bid decimal.Decimal
	Ask decimal.Decimal

	Time time.Time
}

// Price returns the observation price for a direction. Up movements are
// observed at the ask and down movements at the bid.
func (t *Tick) Price(d Direction) decimal.Decimal {
	if d == Down {
		return t.Bid
	}
	return t.Ask
}

func (t *Tick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

func (t *Tick) String() string {
	return fmt.Sprintf("{%s bid %s ask %s at %s}", t.Symbol, t.Bid, t.Ask, t.Time.Format(time.DateTime))
}
