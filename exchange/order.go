// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	ClientOrderID string

	Symbol    string
	Direction Direction
	Volume    decimal.Decimal

	// Price is the observed price that triggered the order, if known. It is
	// informational; brokers fill at the market price.
	Price decimal.Decimal

	Comment string
}

func (v *OrderRequest) Check() error {
	if len(v.Symbol) == 0 {
		return fmt.Errorf("order symbol cannot be empty: %w", os.ErrInvalid)
	}
	if !v.Direction.IsValid() {
		return fmt.Errorf("order direction %q is invalid: %w", v.Direction, os.ErrInvalid)
	}
	if !v.Volume.IsPositive() {
		return fmt.Errorf("order volume must be positive: %w", os.ErrInvalid)
	}
	if v.Price.IsNegative() {
		return fmt.Errorf("order price cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

type OrderResult struct {
	OrderID       string
	ClientOrderID string

	Symbol    string
	Direction Direction
	Volume    decimal.Decimal
	Price     decimal.Decimal

	// Position holds the position ticket closed by this order, if any.
	Position string

	Comment    string
	ServerTime time.Time
}

func (v *OrderResult) String() string {
	return fmt.Sprintf("{ID: %s ClientID: %s %s %s %s at %s}",
		v.OrderID, v.ClientOrderID, v.Direction.Side(), v.Volume, v.Symbol, v.Price)
}
