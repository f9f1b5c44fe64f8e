// Copyright (c) 2025 BVK Chaitanya

// Package metrics defines the prometheus metrics updated by the monitors.
//
//   - pipwatch_crossings_total{symbol,direction}
//   - pipwatch_orders_total{symbol,action,result}
//   - pipwatch_records_total{symbol,result}
//   - pipwatch_notifications_total{result}
//   - pipwatch_pips_from_start{symbol,direction}
//   - pipwatch_monitor_state{symbol,state}
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Crossings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipwatch_crossings_total",
			Help: "Threshold crossings detected",
		},
		[]string{"symbol", "direction"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipwatch_orders_total",
			Help: "Order actions sent to the gateway",
		},
		[]string{"symbol", "action", "result"},
	)

	Records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipwatch_records_total",
			Help: "Snapshot writes split by result",
		},
		[]string{"symbol", "result"},
	)

	// result is one of sent, failed or dropped.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipwatch_notifications_total",
			Help: "Notifications split by delivery result",
		},
		[]string{"result"},
	)

	PipsFromStart = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipwatch_pips_from_start",
			Help: "Pips moved from the baseline at the last crossing",
		},
		[]string{"symbol", "direction"},
	)

	// Exactly one state series per symbol is set to 1.
	MonitorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipwatch_monitor_state",
			Help: "Instrument monitor state indicator",
		},
		[]string{"symbol", "state"},
	)
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		Crossings,
		Orders,
		Records,
		Notifications,
		PipsFromStart,
		MonitorState,
	)
}

// SetState flips the state indicator series for a symbol.
func SetState(symbol string, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		MonitorState.WithLabelValues(symbol, s).Set(v)
	}
}

// Handler serves the metrics in prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
