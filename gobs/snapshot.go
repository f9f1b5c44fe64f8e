// Copyright (c) 2025 BVK Chaitanya

package gobs

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the persisted document for one instrument and one trading day.
type Snapshot struct {
	Symbol string

	// Date is the trading day in the reference timezone, formatted as
	// YYYY-MM-DD.
	Date string

	StartPrice     decimal.Decimal
	StartPriceTime time.Time

	// InitialThresholdPrice holds the price that triggered the latest write.
	InitialThresholdPrice decimal.Decimal

	PreviousThreshold decimal.Decimal
	PipsFromStart     decimal.Decimal
	Direction         string

	// Thresholds holds the union of all threshold prices recorded for the day
	// in first-seen order.
	Thresholds []decimal.Decimal

	Timestamp time.Time

	CreateTime time.Time
	UpdateTime time.Time
}
