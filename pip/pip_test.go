// Copyright (c) 2025 BVK Chaitanya

package pip

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestUnit(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"EURUSD", "0.0001"},
		{"GBPUSD", "0.0001"},
		{"USDJPY", "0.01"},
		{"EURJPY", "0.01"},
		{"eurjpy", "0.01"},
		{"USDJPY.a", "0.01"},
		{"XYZABC", "0.0001"},
		{"", "0.0001"},
	}
	for _, test := range tests {
		want := decimal.RequireFromString(test.want)
		if got := Unit(test.symbol); !got.Equal(want) {
			t.Fatalf("%q: want %s, got %s", test.symbol, want, got)
		}
	}
}

func TestUnitIsPositive(t *testing.T) {
	for symbol := range unitMap {
		if !Unit(symbol).IsPositive() {
			t.Fatalf("%s: pip unit must be positive", symbol)
		}
	}
	if !DefaultUnit().IsPositive() {
		t.Fatalf("default pip unit must be positive")
	}
}

func TestPips(t *testing.T) {
	delta := decimal.RequireFromString("0.0015")
	if got := Pips("EURUSD", delta); !got.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("want 15, got %s", got)
	}
	delta = decimal.RequireFromString("-0.35")
	if got := Pips("USDJPY", delta); !got.Equal(decimal.NewFromInt(-35)) {
		t.Fatalf("want -35, got %s", got)
	}
	if got := Price("USDJPY", 15); !got.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("want 0.15, got %s", got)
	}
}
