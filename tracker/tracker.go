// Copyright (c) 2025 BVK Chaitanya

// Package tracker detects pip threshold crossings for one instrument.
//
// Each direction keeps an independent State seeded with the day's baseline
// price. A crossing fires when the price moves at least the configured number
// of pips away from the previously recorded threshold, in either sense. On a
// crossing, the current price becomes the new previous threshold and is
// appended to the thresholds list.
package tracker

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/pip"
	"github.com/shopspring/decimal"
)

// State is the per-direction threshold state. States are treated as
// immutable values; Evaluate returns a new State on every crossing.
type State struct {
	PreviousThreshold decimal.Decimal

	// Thresholds holds all crossed threshold prices in chronological order. The
	// baseline price is always the first element.
	Thresholds []decimal.Decimal
}

// NewState returns a fresh state seeded with the baseline price.
func NewState(start decimal.Decimal) *State {
	return &State{
		PreviousThreshold: start,
		Thresholds:        []decimal.Decimal{start},
	}
}

func (s *State) Clone() *State {
	return &State{
		PreviousThreshold: s.PreviousThreshold,
		Thresholds:        slices.Clone(s.Thresholds),
	}
}

// Crossings returns number of crossings recorded after the baseline.
func (s *State) Crossings() int {
	if len(s.Thresholds) == 0 {
		return 0
	}
	return len(s.Thresholds) - 1
}

// Event describes a single threshold crossing.
type Event struct {
	Symbol    string
	Direction exchange.Direction

	CurrentPrice      decimal.Decimal
	PreviousThreshold decimal.Decimal
	StartPrice        decimal.Decimal

	PipsFromStart    decimal.Decimal
	PipsFromPrevious decimal.Decimal

	// PipDifference is the configured threshold size.
	PipDifference int64

	// Thresholds is a copy of the thresholds list including the current price.
	Thresholds []decimal.Decimal

	Time time.Time
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s crossing at %s (%s pips from start %s)",
		e.Symbol, e.Direction, e.CurrentPrice, e.PipsFromStart.StringFixed(1), e.StartPrice)
}

type Tracker struct {
	symbol string

	unit decimal.Decimal

	pipDifference int64
	threshold     decimal.Decimal
}

// New creates a tracker for the symbol with a positive pip difference.
func New(symbol string, pipDifference int64) (*Tracker, error) {
	if len(symbol) == 0 {
		return nil, fmt.Errorf("symbol cannot be empty: %w", os.ErrInvalid)
	}
	if pipDifference <= 0 {
		return nil, fmt.Errorf("pip difference must be positive: %w", os.ErrInvalid)
	}
	t := &Tracker{
		symbol:        symbol,
		unit:          pip.Unit(symbol),
		pipDifference: pipDifference,
		threshold:     decimal.NewFromInt(pipDifference),
	}
	return t, nil
}

func (t *Tracker) Symbol() string {
	return t.symbol
}

func (t *Tracker) PipDifference() int64 {
	return t.pipDifference
}

// Distance returns the signed pip distance from `from` to `to` in the given
// direction. Favorable movements are positive.
func (t *Tracker) Distance(d exchange.Direction, from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Mul(decimal.NewFromInt(d.Sign())).Div(t.unit)
}

// Evaluate checks the current price against the state for a direction. When
// there is no crossing, the input state is returned as is with a nil
// event. Input state is never modified.
func (t *Tracker) Evaluate(d exchange.Direction, start, current decimal.Decimal, state *State, at time.Time) (*State, *Event) {
	fromPrevious := t.Distance(d, state.PreviousThreshold, current)
	if fromPrevious.Abs().LessThan(t.threshold) {
		return state, nil
	}

	thresholds := make([]decimal.Decimal, 0, len(state.Thresholds)+1)
	thresholds = append(thresholds, state.Thresholds...)
	thresholds = append(thresholds, current)
	next := &State{
		PreviousThreshold: current,
		Thresholds:        thresholds,
	}

	event := &Event{
		Symbol:            t.symbol,
		Direction:         d,
		CurrentPrice:      current,
		PreviousThreshold: state.PreviousThreshold,
		StartPrice:        start,
		PipsFromStart:     t.Distance(d, start, current),
		PipsFromPrevious:  fromPrevious,
		PipDifference:     t.pipDifference,
		Thresholds:        slices.Clone(thresholds),
		Time:              at,
	}
	return next, event
}
