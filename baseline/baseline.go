// Copyright (c) 2025 BVK Chaitanya

// Package baseline resolves the reference price of an instrument for a
// trading day.
//
// Baselines are resolved in the reference timezone using the following
// policy, in order:
//
//   - An existing snapshot for the day is reused as is.
//   - At or after the cutoff time, closing price of the bar at the cutoff
//     minute is used; if that bar is absent, the bar at the fallback minute of
//     the same hour is used.
//   - On a market resumption day with no historical bar, resolver waits for
//     the trading session to open and uses the first observed ask price.
//   - Before the cutoff time on other days, resolution is deferred to the next
//     cutoff instant.
//
// A newly resolved baseline is committed to the store before it is returned.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/notify"
	"github.com/bvk/pipwatch/store"
	"github.com/shopspring/decimal"
)

// ErrDeferred is returned when the baseline cannot be resolved before the
// next cutoff instant.
var ErrDeferred = fmt.Errorf("baseline is deferred till the next cutoff: %w", exchange.ErrUnavailable)

type Source string

const (
	SourceSnapshot   Source = "snapshot"
	SourceCutoff     Source = "cutoff"
	SourceFallback   Source = "fallback"
	SourceMarketOpen Source = "market-open"
)

type Baseline struct {
	Symbol string

	// Date is the trading day in the reference timezone.
	Date string

	StartPrice decimal.Decimal

	// StartTime is the UTC time of the observation or bar.
	StartTime time.Time

	Source Source
}

func (b *Baseline) String() string {
	return fmt.Sprintf("%s %s start price %s at %s (%s)", b.Symbol, b.Date, b.StartPrice, b.StartTime.Format(time.DateTime), b.Source)
}

type Options struct {
	// Location is the reference timezone for trading days and cutoff times.
	Location *time.Location

	CutoffHour     int
	CutoffMinute   int
	FallbackMinute int

	// OpenPollInterval is the wait between session checks while the market is
	// closed.
	OpenPollInterval time.Duration

	// FeedTimeout bounds each price feed call.
	FeedTimeout time.Duration

	// ResumptionDays are the weekdays on which the market resumes after a
	// weekend closure.
	ResumptionDays []time.Weekday
}

// DefaultOptions returns the options with 02:00 IST as the cutoff time and
// 02:30 as the fallback time.
func DefaultOptions() *Options {
	opts := &Options{
		CutoffHour:     2,
		CutoffMinute:   0,
		FallbackMinute: 30,
	}
	opts.setDefaults()
	return opts
}

// DefaultLocation returns the Asia/Kolkata timezone. A fixed offset zone is
// used when the timezone database is not available.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

func (v *Options) setDefaults() {
	if v.Location == nil {
		v.Location = DefaultLocation()
	}
	if v.OpenPollInterval == 0 {
		v.OpenPollInterval = time.Minute
	}
	if v.FeedTimeout == 0 {
		v.FeedTimeout = 5 * time.Second
	}
	if v.ResumptionDays == nil {
		v.ResumptionDays = []time.Weekday{time.Monday}
	}
}

func (v *Options) Check() error {
	if v.CutoffHour < 0 || v.CutoffHour > 23 {
		return fmt.Errorf("cutoff hour must be in [0-23]: %w", os.ErrInvalid)
	}
	if v.CutoffMinute < 0 || v.CutoffMinute > 59 {
		return fmt.Errorf("cutoff minute must be in [0-59]: %w", os.ErrInvalid)
	}
	if v.FallbackMinute < 0 || v.FallbackMinute > 59 {
		return fmt.Errorf("fallback minute must be in [0-59]: %w", os.ErrInvalid)
	}
	if v.OpenPollInterval <= 0 {
		return fmt.Errorf("market open poll interval must be positive: %w", os.ErrInvalid)
	}
	if v.FeedTimeout <= 0 {
		return fmt.Errorf("feed timeout must be positive: %w", os.ErrInvalid)
	}
	return nil
}

type Resolver struct {
	opts Options

	feed exchange.Feed

	db store.Store

	sink notify.Sink
}

// New creates a baseline resolver. Notification sink is optional.
func New(feed exchange.Feed, db store.Store, sink notify.Sink, opts *Options) (*Resolver, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if feed == nil || db == nil {
		return nil, fmt.Errorf("feed and store are required: %w", os.ErrInvalid)
	}
	r := &Resolver{
		opts: *opts,
		feed: feed,
		db:   db,
		sink: sink,
	}
	return r, nil
}

func (r *Resolver) Location() *time.Location {
	return r.opts.Location
}

// Date returns the trading day for the instant.
func (r *Resolver) Date(at time.Time) string {
	return store.Date(at, r.opts.Location)
}

// Cutoff returns the cutoff instant on the trading day of the input.
func (r *Resolver) Cutoff(at time.Time) time.Time {
	local := at.In(r.opts.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), r.opts.CutoffHour, r.opts.CutoffMinute, 0, 0, r.opts.Location)
}

func (r *Resolver) fallback(at time.Time) time.Time {
	local := at.In(r.opts.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), r.opts.CutoffHour, r.opts.FallbackMinute, 0, 0, r.opts.Location)
}

// NextAttempt returns the next cutoff instant after the input.
func (r *Resolver) NextAttempt(now time.Time) time.Time {
	cutoff := r.Cutoff(now)
	if now.Before(cutoff) {
		return cutoff
	}
	local := now.In(r.opts.Location)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, r.opts.Location)
	return r.Cutoff(next)
}

// IsResumptionDay returns true if the trading day of the input is a market
// resumption day.
func (r *Resolver) IsResumptionDay(at time.Time) bool {
	return slices.Contains(r.opts.ResumptionDays, at.In(r.opts.Location).Weekday())
}

// Resolve returns the baseline for the symbol on the trading day of `now`.
// Errors wrap exchange.ErrUnavailable when no baseline can be determined
// yet, ErrDeferred in particular when the cutoff time is not reached.
func (r *Resolver) Resolve(ctx context.Context, symbol string, now time.Time) (*Baseline, error) {
	date := r.Date(now)

	snap, err := r.db.Get(ctx, symbol, date)
	if err == nil && snap.StartPrice.IsPositive() {
		b := &Baseline{
			Symbol:     symbol,
			Date:       date,
			StartPrice: snap.StartPrice,
			StartTime:  snap.StartPriceTime,
			Source:     SourceSnapshot,
		}
		slog.Info("reusing existing baseline from the snapshot", "baseline", b)
		return b, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not check existing snapshot for %s on %s: %w: %w", symbol, date, exchange.ErrTransient, err)
	}

	cutoff := r.Cutoff(now)
	if !now.Before(cutoff) {
		b, err := r.historical(ctx, symbol, date, cutoff)
		if err != nil {
			return nil, err
		}
		if b != nil {
			r.commit(ctx, b, now)
			return b, nil
		}
	}

	if r.IsResumptionDay(now) {
		b, err := r.marketOpen(ctx, symbol, date)
		if err != nil {
			return nil, err
		}
		r.commit(ctx, b, now)
		return b, nil
	}

	if now.Before(cutoff) {
		return nil, fmt.Errorf("%s on %s at %s: %w", symbol, date, now.In(r.opts.Location).Format(time.TimeOnly), ErrDeferred)
	}
	return nil, fmt.Errorf("no historical bar for %s at %s or %s: %w", symbol,
		cutoff.Format(time.DateTime), r.fallback(now).Format(time.DateTime), exchange.ErrUnavailable)
}

// historical returns nil baseline when neither the cutoff bar nor the
// fallback bar is found.
func (r *Resolver) historical(ctx context.Context, symbol, date string, cutoff time.Time) (*Baseline, error) {
	instants := []time.Time{cutoff, r.fallback(cutoff)}
	sources := []Source{SourceCutoff, SourceFallback}

	for i, at := range instants {
		if i > 0 && at.Equal(instants[0]) {
			break
		}
		fctx, fcancel := context.WithTimeout(ctx, r.opts.FeedTimeout)
		price, ok, err := r.feed.HistoricalClose(fctx, symbol, at)
		fcancel()
		if err != nil {
			err = r.timedOut(ctx, err)
			return nil, fmt.Errorf("could not fetch historical close for %s at %s: %w", symbol, at.Format(time.DateTime), err)
		}
		if !ok {
			slog.Info("historical bar is not found", "symbol", symbol, "at", at)
			continue
		}
		b := &Baseline{
			Symbol:     symbol,
			Date:       date,
			StartPrice: price,
			StartTime:  at.UTC(),
			Source:     sources[i],
		}
		return b, nil
	}
	return nil, nil
}

func (r *Resolver) marketOpen(ctx context.Context, symbol, date string) (*Baseline, error) {
	if err := r.waitForOpen(ctx, symbol); err != nil {
		return nil, err
	}
	fctx, fcancel := context.WithTimeout(ctx, r.opts.FeedTimeout)
	tick, err := r.feed.LatestTick(fctx, symbol)
	fcancel()
	if err != nil {
		err = r.timedOut(ctx, err)
		return nil, fmt.Errorf("could not fetch first price after market open for %s: %w", symbol, err)
	}
	if !tick.Ask.IsPositive() {
		return nil, fmt.Errorf("first price after market open for %s is not valid: %w", symbol, exchange.ErrUnavailable)
	}
	at := tick.Time
	if at.IsZero() {
		at = time.Now()
	}
	b := &Baseline{
		Symbol:     symbol,
		Date:       date,
		StartPrice: tick.Ask,
		StartTime:  at.UTC(),
		Source:     SourceMarketOpen,
	}
	return b, nil
}

func (r *Resolver) waitForOpen(ctx context.Context, symbol string) error {
	for notified := false; ; {
		fctx, fcancel := context.WithTimeout(ctx, r.opts.FeedTimeout)
		open, err := r.feed.IsSessionOpen(fctx, symbol)
		fcancel()
		if err != nil {
			err = r.timedOut(ctx, err)
		}
		if err != nil && !exchange.IsRetryable(err) {
			return fmt.Errorf("could not check trading session for %s: %w", symbol, err)
		}
		if err == nil && open {
			return nil
		}
		if err != nil {
			slog.Warn("could not check trading session (will retry)", "symbol", symbol, "err", err)
		}
		if !notified && r.sink != nil {
			r.sink.SendMessage(ctx, time.Now(), fmt.Sprintf("Market is closed for %s. Waiting for it to open...", symbol))
			notified = true
		}
		ctxutil.Sleep(ctx, r.opts.OpenPollInterval)
		if err := context.Cause(ctx); err != nil {
			return err
		}
	}
}

// timedOut marks a feed call deadline as a transient error when the parent
// context is still live.
func (r *Resolver) timedOut(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("price feed timed out after %s: %w: %w", r.opts.FeedTimeout, exchange.ErrTransient, err)
	}
	return err
}

func (r *Resolver) commit(ctx context.Context, b *Baseline, now time.Time) {
	u := &store.Update{
		Symbol:                b.Symbol,
		Date:                  b.Date,
		StartPrice:            b.StartPrice,
		StartPriceTime:        b.StartTime,
		InitialThresholdPrice: b.StartPrice,
		PreviousThreshold:     b.StartPrice,
		PipsFromStart:         decimal.Zero,
		Direction:             exchange.None,
		Thresholds:            []decimal.Decimal{b.StartPrice},
		Timestamp:             now,
	}
	if _, err := r.db.Upsert(ctx, u); err != nil {
		slog.Error("could not save new baseline (ignored)", "baseline", b, "err", err)
		return
	}
	slog.Info("saved new baseline", "baseline", b)
}
