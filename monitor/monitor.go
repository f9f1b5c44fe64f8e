// Copyright (c) 2025 BVK Chaitanya

// Package monitor runs the per-instrument threshold tracking loops.
//
// Each Monitor owns the baseline, both threshold states and the trade status
// of exactly one instrument. A monitor cycles through the AwaitingBaseline and
// Tracking states once per trading day and ends in the Terminated state on
// cancellation or a fatal error.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/bvk/pipwatch/baseline"
	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/lifecycle"
	"github.com/bvk/pipwatch/metrics"
	"github.com/bvk/pipwatch/notify"
	"github.com/bvk/pipwatch/recorder"
	"github.com/bvk/pipwatch/tracker"
)

type State string

const (
	AwaitingBaseline State = "awaiting-baseline"
	Tracking         State = "tracking"
	Terminated       State = "terminated"
)

var stateNames = []string{string(AwaitingBaseline), string(Tracking), string(Terminated)}

// Instrument is the monitoring configuration for one symbol.
type Instrument struct {
	Symbol        string `yaml:"symbol" json:"symbol"`
	PipDifference int64  `yaml:"pip_difference" json:"pip_difference"`
}

func (v *Instrument) Check() error {
	if len(v.Symbol) == 0 {
		return fmt.Errorf("instrument symbol cannot be empty: %w", os.ErrInvalid)
	}
	if v.PipDifference <= 0 {
		return fmt.Errorf("pip difference for %s must be positive: %w", v.Symbol, os.ErrInvalid)
	}
	return nil
}

type Options struct {
	// PollInterval is the wait between two price polls.
	PollInterval time.Duration

	// FeedTimeout bounds each price feed call.
	FeedTimeout time.Duration

	// BaselineRetryInterval is the wait before retrying an unavailable
	// baseline, unless the resolution is deferred to a known instant.
	BaselineRetryInterval time.Duration

	Lifecycle lifecycle.Options
}

func (v *Options) setDefaults() {
	if v.PollInterval == 0 {
		v.PollInterval = time.Second
	}
	if v.FeedTimeout == 0 {
		v.FeedTimeout = 5 * time.Second
	}
	if v.BaselineRetryInterval == 0 {
		v.BaselineRetryInterval = 5 * time.Minute
	}
}

func (v *Options) Check() error {
	if v.PollInterval <= 0 || v.FeedTimeout <= 0 || v.BaselineRetryInterval <= 0 {
		return fmt.Errorf("monitor intervals must be positive: %w", os.ErrInvalid)
	}
	return nil
}

// Status is an immutable snapshot of a monitor's state.
type Status struct {
	Symbol        string
	PipDifference int64

	State State

	Baseline *baseline.Baseline

	Up   *tracker.State
	Down *tracker.State

	Trade lifecycle.Status

	LastTick  *exchange.Tick
	LastError string

	UpdateTime time.Time
}

type Monitor struct {
	instrument Instrument

	opts Options

	feed     exchange.Feed
	resolver *baseline.Resolver
	tracker  *tracker.Tracker
	machine  *lifecycle.Machine
	recorder *recorder.Recorder
	sink     notify.Sink

	now func() time.Time

	// Fields below are owned by the Run goroutine.

	state    State
	base     *baseline.Baseline
	states   map[exchange.Direction]*tracker.State
	lastTick *exchange.Tick
	lastErr  error

	status atomic.Pointer[Status]
}

// New creates a monitor for the instrument. Collaborators are shared with
// other monitors and are owned by the caller.
func New(inst Instrument, feed exchange.Feed, gateway exchange.Gateway, resolver *baseline.Resolver, rec *recorder.Recorder, sink notify.Sink, opts *Options) (*Monitor, error) {
	if err := inst.Check(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if feed == nil || resolver == nil || rec == nil {
		return nil, fmt.Errorf("feed, baseline resolver and recorder are required: %w", os.ErrInvalid)
	}
	if sink == nil {
		sink = notify.Log{}
	}

	t, err := tracker.New(inst.Symbol, inst.PipDifference)
	if err != nil {
		return nil, err
	}
	lopts := opts.Lifecycle
	machine, err := lifecycle.NewMachine(inst.Symbol, gateway, &lopts)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		instrument: inst,
		opts:       *opts,
		feed:       feed,
		resolver:   resolver,
		tracker:    t,
		machine:    machine,
		recorder:   rec,
		sink:       sink,
		now:        time.Now,
		state:      AwaitingBaseline,
		states:     make(map[exchange.Direction]*tracker.State),
	}
	m.publish()
	return m, nil
}

func (m *Monitor) Symbol() string {
	return m.instrument.Symbol
}

// Status returns the latest status snapshot. It is safe to call from any
// goroutine.
func (m *Monitor) Status() *Status {
	return m.status.Load()
}

func (m *Monitor) publish() {
	s := &Status{
		Symbol:        m.instrument.Symbol,
		PipDifference: m.instrument.PipDifference,
		State:         m.state,
		Trade:         m.machine.Status(),
		UpdateTime:    m.now(),
	}
	if m.base != nil {
		b := *m.base
		s.Baseline = &b
	}
	if v, ok := m.states[exchange.Up]; ok {
		s.Up = v.Clone()
	}
	if v, ok := m.states[exchange.Down]; ok {
		s.Down = v.Clone()
	}
	if m.lastTick != nil {
		t := *m.lastTick
		s.LastTick = &t
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	m.status.Store(s)
}

func (m *Monitor) setState(state State) {
	m.state = state
	metrics.SetState(m.instrument.Symbol, string(state), stateNames)
	m.publish()
}

func (m *Monitor) notify(ctx context.Context, format string, args ...any) {
	if err := m.sink.SendMessage(ctx, m.now(), fmt.Sprintf(format, args...)); err != nil {
		slog.Warn("could not send notification (ignored)", "symbol", m.instrument.Symbol, "err", err)
	}
}

// Run tracks the instrument till the context is canceled or a fatal error
// occurs. Returned error is never nil.
func (m *Monitor) Run(ctx context.Context) (status error) {
	symbol := m.instrument.Symbol
	defer func() {
		m.lastErr = status
		m.setState(Terminated)
		if ctx.Err() == nil {
			m.notify(context.WithoutCancel(ctx), "Monitor for %s is terminated: %v", symbol, status)
		}
	}()

	slog.Info("started monitor", "symbol", symbol, "pip-difference", m.instrument.PipDifference)
	m.notify(ctx, "Started with %s - %d pips", symbol, m.instrument.PipDifference)

	for {
		b, err := m.awaitBaseline(ctx)
		if err != nil {
			return err
		}
		if err := m.track(ctx, b); err != nil {
			return err
		}
		slog.Info("trading day has ended", "symbol", symbol, "date", b.Date)
	}
}

func (m *Monitor) awaitBaseline(ctx context.Context) (*baseline.Baseline, error) {
	symbol := m.instrument.Symbol
	m.setState(AwaitingBaseline)

	for {
		now := m.now()
		b, err := m.resolver.Resolve(ctx, symbol, now)
		if err == nil {
			return b, nil
		}
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		if exchange.IsFatal(err) {
			slog.Error("could not resolve baseline", "symbol", symbol, "err", err)
			return nil, err
		}

		m.lastErr = err
		m.publish()

		wait := m.opts.BaselineRetryInterval
		if errors.Is(err, baseline.ErrDeferred) {
			wait = m.resolver.NextAttempt(now).Sub(now)
		}
		slog.Info("baseline is not available (will retry)", "symbol", symbol, "wait", wait, "err", err)
		ctxutil.Sleep(ctx, wait)
	}
}

// arm resets the per-day threshold state with a new baseline. Trade status is
// left as is.
func (m *Monitor) arm(b *baseline.Baseline) {
	m.base = b
	m.lastErr = nil
	for _, d := range exchange.Directions {
		m.states[d] = tracker.NewState(b.StartPrice)
	}
	m.machine.SetSeed(b.Date)
	m.recorder.SetStartTime(b.Symbol, b.StartTime)
}

// track returns nil when the trading day of the baseline has ended.
func (m *Monitor) track(ctx context.Context, b *baseline.Baseline) error {
	symbol := m.instrument.Symbol
	m.arm(b)
	m.setState(Tracking)
	m.notify(ctx, "Started tracking %s with start price %s (%s) and %d-pip threshold", symbol, b.StartPrice, b.Source, m.instrument.PipDifference)

	for {
		if date := m.resolver.Date(m.now()); date != b.Date {
			return nil
		}

		if err := m.poll(ctx); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			if exchange.IsFatal(err) {
				slog.Error("could not poll price feed", "symbol", symbol, "err", err)
				return err
			}
			m.lastErr = err
			m.publish()
			slog.Warn("could not poll price feed (will retry)", "symbol", symbol, "err", err)
		}

		ctxutil.Sleep(ctx, m.opts.PollInterval)
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
}

// poll fetches the latest tick and evaluates both directions in order. Up
// movement is evaluated at the ask price and down movement at the bid.
func (m *Monitor) poll(ctx context.Context) error {
	symbol := m.instrument.Symbol

	fctx, fcancel := context.WithTimeout(ctx, m.opts.FeedTimeout)
	tick, err := m.feed.LatestTick(fctx, symbol)
	fcancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("price feed timed out for %s: %w: %w", symbol, exchange.ErrTransient, err)
		}
		return fmt.Errorf("could not fetch latest tick for %s: %w", symbol, err)
	}
	m.lastTick = tick

	for _, d := range exchange.Directions {
		price := tick.Price(d)
		if !price.IsPositive() {
			continue
		}
		next, event := m.tracker.Evaluate(d, m.base.StartPrice, price, m.states[d], m.now())
		m.states[d] = next
		if event != nil {
			m.handle(ctx, event)
		}
	}
	m.publish()
	return nil
}

// handle applies a crossing to the trade status and then records it.
func (m *Monitor) handle(ctx context.Context, event *tracker.Event) {
	symbol := m.instrument.Symbol
	metrics.Crossings.WithLabelValues(symbol, event.Direction.String()).Inc()
	slog.Info("threshold crossed", "event", event)

	outcome, err := m.machine.Apply(ctx, event)
	if err != nil {
		action := "unknown"
		if outcome != nil {
			action = outcome.Action.String()
		}
		metrics.Orders.WithLabelValues(symbol, action, "failed").Inc()
		m.lastErr = err
		m.notify(ctx, "Could not %s trade for %s: %v", action, symbol, err)
	} else if outcome.Action != lifecycle.ActionNone {
		metrics.Orders.WithLabelValues(symbol, outcome.Action.String(), "ok").Inc()
		for _, order := range outcome.Orders {
			m.notify(ctx, "Trade %s successful for %s: %s", outcome.Action, symbol, order)
		}
		if len(outcome.Orders) == 0 {
			m.notify(ctx, "Trade %s for %s found no orders to execute", outcome.Action, symbol)
		}
	}

	if err := m.recorder.Persist(ctx, event); err != nil {
		m.lastErr = err
	}
}
