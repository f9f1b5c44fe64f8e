// Copyright (c) 2025 BVK Chaitanya

package lifecycle

import (
	"fmt"

	"github.com/bvk/pipwatch/exchange"
)

// Status is the trade status for one instrument. Zero value is the flat
// status.
type Status struct {
	OpenDirection exchange.Direction

	ThresholdCount int
}

func (s Status) IsFlat() bool {
	return s.OpenDirection == exchange.None
}

// Check verifies the status invariants.
func (s Status) Check() error {
	if s.IsFlat() {
		if s.ThresholdCount != 0 {
			return fmt.Errorf("flat status must have zero threshold count, got %d", s.ThresholdCount)
		}
		return nil
	}
	if !s.OpenDirection.IsValid() {
		return fmt.Errorf("invalid open direction %q", s.OpenDirection)
	}
	if s.ThresholdCount < 1 || s.ThresholdCount > 2 {
		return fmt.Errorf("open status must have threshold count 1 or 2, got %d", s.ThresholdCount)
	}
	return nil
}

func (s Status) String() string {
	if s.IsFlat() {
		return "flat"
	}
	return fmt.Sprintf("open-%s(%d)", s.OpenDirection, s.ThresholdCount)
}

type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	}
	return "none"
}

// Next returns the status after a crossing in direction d along with the
// order action to perform. It is a pure function.
//
// A flat instrument opens a position in the crossing direction. A second
// crossing in the open direction closes the position and returns to flat.
// Crossings in the opposite direction do not change the status.
func Next(s Status, d exchange.Direction) (Status, Action) {
	if !d.IsValid() {
		return s, ActionNone
	}
	if s.IsFlat() {
		return Status{OpenDirection: d, ThresholdCount: 1}, ActionOpen
	}
	if s.OpenDirection != d {
		return s, ActionNone
	}
	if s.ThresholdCount+1 >= 2 {
		return Status{}, ActionClose
	}
	return Status{OpenDirection: d, ThresholdCount: s.ThresholdCount + 1}, ActionNone
}
