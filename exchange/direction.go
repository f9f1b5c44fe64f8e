// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"os"
	"strings"
)

// Direction is the side of a price movement. Empty value represents no
// direction.
type Direction string

const (
	None Direction = ""
	Up   Direction = "up"
	Down Direction = "down"
)

// Directions lists both directions in the order they are evaluated.
var Directions = []Direction{Up, Down}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "buy":
		return Up, nil
	case "down", "sell":
		return Down, nil
	}
	return None, fmt.Errorf("invalid direction %q: %w", s, os.ErrInvalid)
}

func (d Direction) IsValid() bool {
	return d == Up || d == Down
}

// Sign returns +1 for up and -1 for down so that favorable movements in the
// direction are always positive.
func (d Direction) Sign() int64 {
	switch d {
	case Up:
		return 1
	case Down:
		return -1
	}
	return 0
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	}
	return None
}

// Side returns the market order side that opens a position in this
// direction.
func (d Direction) Side() string {
	switch d {
	case Up:
		return "buy"
	case Down:
		return "sell"
	}
	return ""
}

func (d Direction) String() string {
	if d == None {
		return "none"
	}
	return string(d)
}
