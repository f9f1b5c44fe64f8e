// Copyright (c) 2025 BVK Chaitanya

// Package store persists one snapshot document per instrument and trading
// day.
//
// Writes are upserts: scalar fields are replaced by the latest values and the
// thresholds list is merged with set-union semantics, so that writing the
// same threshold twice leaves a single entry.
package store

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/gobs"
	"github.com/shopspring/decimal"
)

// DateLayout is the format of the trading day in snapshot keys.
const DateLayout = time.DateOnly

// Update holds the fields written by one upsert.
type Update struct {
	Symbol string
	Date   string

	StartPrice     decimal.Decimal
	StartPriceTime time.Time

	InitialThresholdPrice decimal.Decimal
	PreviousThreshold     decimal.Decimal
	PipsFromStart         decimal.Decimal
	Direction             exchange.Direction

	Thresholds []decimal.Decimal

	Timestamp time.Time
}

func (v *Update) Check() error {
	if len(v.Symbol) == 0 {
		return fmt.Errorf("snapshot symbol cannot be empty: %w", os.ErrInvalid)
	}
	if _, err := time.Parse(DateLayout, v.Date); err != nil {
		return fmt.Errorf("snapshot date %q is invalid: %w", v.Date, os.ErrInvalid)
	}
	if !v.StartPrice.IsPositive() {
		return fmt.Errorf("snapshot start price must be positive: %w", os.ErrInvalid)
	}
	return nil
}

// Store is the persistent store for snapshots. Implementations must perform
// each Upsert atomically per (symbol, date) key.
type Store interface {
	// Upsert creates or updates the snapshot and returns true if a new snapshot
	// was created.
	Upsert(ctx context.Context, u *Update) (created bool, err error)

	// Exists returns true if a snapshot exists for the symbol and date.
	Exists(ctx context.Context, symbol, date string) (bool, error)

	// Get returns the snapshot or an error wrapping os.ErrNotExist.
	Get(ctx context.Context, symbol, date string) (*gobs.Snapshot, error)

	// List returns all snapshots for a date ordered by symbol.
	List(ctx context.Context, date string) ([]*gobs.Snapshot, error)
}

// Date returns the trading day for an instant in the reference timezone.
func Date(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return at.In(loc).Format(DateLayout)
}

// Union appends the items in `add` that are not already present in `list`
// and returns the result. Decimals are compared by value.
func Union(list, add []decimal.Decimal) []decimal.Decimal {
	result := slices.Clone(list)
	for _, v := range add {
		if !slices.ContainsFunc(result, v.Equal) {
			result = append(result, v)
		}
	}
	return result
}

// Merge applies an update over an existing snapshot, which may be nil, and
// returns the new snapshot.
func Merge(old *gobs.Snapshot, u *Update, now time.Time) *gobs.Snapshot {
	s := &gobs.Snapshot{
		Symbol:                u.Symbol,
		Date:                  u.Date,
		StartPrice:            u.StartPrice,
		StartPriceTime:        u.StartPriceTime.UTC(),
		InitialThresholdPrice: u.InitialThresholdPrice,
		PreviousThreshold:     u.PreviousThreshold,
		PipsFromStart:         u.PipsFromStart,
		Direction:             string(u.Direction),
		Timestamp:             u.Timestamp.UTC(),
		CreateTime:            now,
		UpdateTime:            now,
	}
	if old == nil {
		s.Thresholds = Union(nil, u.Thresholds)
		return s
	}
	s.CreateTime = old.CreateTime
	s.Thresholds = Union(old.Thresholds, u.Thresholds)
	return s
}
