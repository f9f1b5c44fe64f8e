// Copyright (c) 2025 BVK Chaitanya

// Package pip converts between instrument prices and pips.
//
// Pip units are fixed per instrument and never change at runtime. Symbols
// that are not in the table use the default unit of 0.0001, which is correct
// for most non-yen currency pairs.
package pip

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	defaultUnit = decimal.New(1, -4)
	yenUnit     = decimal.New(1, -2)
	metalUnit   = decimal.New(1, -1)
)

var unitMap = map[string]decimal.Decimal{
	"EURUSD": defaultUnit,
	"GBPUSD": defaultUnit,
	"AUDUSD": defaultUnit,
	"NZDUSD": defaultUnit,
	"USDCAD": defaultUnit,
	"USDCHF": defaultUnit,
	"EURGBP": defaultUnit,
	"EURCHF": defaultUnit,
	"EURAUD": defaultUnit,
	"GBPCHF": defaultUnit,

	"USDJPY": yenUnit,
	"EURJPY": yenUnit,
	"GBPJPY": yenUnit,
	"AUDJPY": yenUnit,
	"NZDJPY": yenUnit,
	"CADJPY": yenUnit,
	"CHFJPY": yenUnit,

	"XAUUSD": metalUnit,
}

// DefaultUnit returns the pip unit used for unknown symbols.
func DefaultUnit() decimal.Decimal {
	return defaultUnit
}

// Normalize returns the canonical table name for a symbol. Broker specific
// suffixes separated by a dot (ex: "EURUSD.a") are dropped.
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if p := strings.IndexByte(s, '.'); p > 0 {
		s = s[:p]
	}
	return s
}

// Unit returns the pip unit for the symbol. It always returns a positive
// value.
func Unit(symbol string) decimal.Decimal {
	if v, ok := unitMap[Normalize(symbol)]; ok {
		return v
	}
	return defaultUnit
}

// IsKnown returns true if the symbol has an explicit entry in the table.
func IsKnown(symbol string) bool {
	_, ok := unitMap[Normalize(symbol)]
	return ok
}

// Pips converts a price difference into number of pips for the symbol.
func Pips(symbol string, delta decimal.Decimal) decimal.Decimal {
	return delta.Div(Unit(symbol))
}

// Price converts number of pips into a price difference for the symbol.
func Price(symbol string, pips int64) decimal.Decimal {
	return Unit(symbol).Mul(decimal.NewFromInt(pips))
}
