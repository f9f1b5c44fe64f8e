// Copyright (c) 2025 BVK Chaitanya

// Package api defines the request paths and JSON response types served by
// the pipwatch daemon.
package api

import (
	"time"

	"github.com/bvk/pipwatch/gobs"
	"github.com/shopspring/decimal"
)

const (
	StatusPath    = "/api/status"
	SnapshotsPath = "/api/snapshots"
	SnapshotPath  = "/api/snapshot"
	MetricsPath   = "/metrics"
	DBPath        = "/db/"
	PIDPath       = "/pid"
)

type Process struct {
	PID       int32
	StartTime time.Time
	Uptime    string

	CPUPercent float64
	RSS        uint64
	NumThreads int32
	NumFDs     int32
}

type Monitor struct {
	Symbol        string
	PipDifference int64

	State string

	Date           string
	StartPrice     decimal.Decimal
	BaselineSource string

	UpThresholds   []decimal.Decimal
	DownThresholds []decimal.Decimal

	// Position is the direction of the open trade or empty when flat.
	Position       string
	ThresholdCount int

	Bid      decimal.Decimal
	Ask      decimal.Decimal
	TickTime time.Time

	LastError  string
	UpdateTime time.Time
}

type StatusResponse struct {
	Process *Process

	DryRun bool

	// BridgeState is the circuit breaker state of the bridge client.
	BridgeState string

	Monitors []*Monitor
}

type SnapshotsResponse struct {
	Date      string
	Snapshots []*gobs.Snapshot
}
