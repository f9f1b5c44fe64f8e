// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bvk/pipwatch/api"
	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/httputil"
	"github.com/bvk/pipwatch/metrics"
	"github.com/bvk/pipwatch/monitor"
	"github.com/bvk/pipwatch/pip"
	"github.com/bvk/pipwatch/store"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/shopspring/decimal"
)

// HandlerMap returns the http handlers for the daemon api.
func (s *Server) HandlerMap() map[string]http.Handler {
	return map[string]http.Handler{
		api.StatusPath:    httputil.JSONHandler(s.doStatus),
		api.SnapshotsPath: httputil.JSONHandler(s.doSnapshots),
		api.SnapshotPath:  httputil.JSONHandler(s.doSnapshot),
		api.MetricsPath:   metrics.Handler(),
		api.DBPath:        http.StripPrefix(strings.TrimSuffix(api.DBPath, "/"), kvhttp.Handler(s.db)),
	}
}

func toMonitor(st *monitor.Status) *api.Monitor {
	m := &api.Monitor{
		Symbol:         st.Symbol,
		PipDifference:  st.PipDifference,
		State:          string(st.State),
		Position:       string(st.Trade.OpenDirection),
		ThresholdCount: st.Trade.ThresholdCount,
		LastError:      st.LastError,
		UpdateTime:     st.UpdateTime,
	}
	if b := st.Baseline; b != nil {
		m.Date = b.Date
		m.StartPrice = b.StartPrice
		m.BaselineSource = string(b.Source)
	}
	if st.Up != nil {
		m.UpThresholds = st.Up.Thresholds
	}
	if st.Down != nil {
		m.DownThresholds = st.Down.Thresholds
	}
	if t := st.LastTick; t != nil {
		m.Bid, m.Ask, m.TickTime = t.Bid, t.Ask, t.Time
	}
	return m
}

func (s *Server) status(ctx context.Context) *api.StatusResponse {
	resp := &api.StatusResponse{
		Process: processStats(ctx, s.startTime),
		DryRun:  s.cfg.Trade.DryRun,
	}
	if s.bridge != nil {
		resp.BridgeState = s.bridge.BreakerState()
	}
	for _, st := range s.supervisor.Statuses() {
		resp.Monitors = append(resp.Monitors, toMonitor(st))
	}
	return resp
}

func (s *Server) doStatus(r *http.Request) (*api.StatusResponse, error) {
	return s.status(r.Context()), nil
}

// parseDate validates a YYYY-MM-DD date. Empty value is the current date in
// the reference timezone.
func (s *Server) parseDate(v string) (string, error) {
	if len(v) == 0 {
		return store.Date(time.Now(), s.loc), nil
	}
	if _, err := time.ParseInLocation(store.DateLayout, v, s.loc); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", v, os.ErrInvalid)
	}
	return v, nil
}

func (s *Server) doSnapshots(r *http.Request) (*api.SnapshotsResponse, error) {
	date, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		return nil, err
	}
	snapshots, err := s.store.List(r.Context(), date)
	if err != nil {
		return nil, err
	}
	return &api.SnapshotsResponse{Date: date, Snapshots: snapshots}, nil
}

func (s *Server) doSnapshot(r *http.Request) (*gobs.Snapshot, error) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if len(symbol) == 0 {
		return nil, fmt.Errorf("symbol parameter is required: %w", os.ErrInvalid)
	}
	date, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		return nil, err
	}
	return s.store.Get(r.Context(), symbol, date)
}

// pipsFromStart returns the signed pip distance of the latest mid price from
// the start price, or false when either is unknown.
func pipsFromStart(m *api.Monitor) (decimal.Decimal, bool) {
	if m.StartPrice.IsZero() || m.Bid.IsZero() || m.Ask.IsZero() {
		return decimal.Zero, false
	}
	mid := m.Bid.Add(m.Ask).Div(decimal.NewFromInt(2))
	return pip.Pips(m.Symbol, mid.Sub(m.StartPrice)), true
}
