// Copyright (c) 2025 BVK Chaitanya

// Package recorder persists threshold crossings as daily snapshots and
// notifies about every crossing, whether it was recorded or not.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/pipwatch/metrics"
	"github.com/bvk/pipwatch/notify"
	"github.com/bvk/pipwatch/store"
	"github.com/bvk/pipwatch/syncmap"
	"github.com/bvk/pipwatch/tracker"
)

// ErrNotRecorded is wrapped by Persist errors when the crossing was observed
// but could not be saved.
var ErrNotRecorded = errors.New("crossing is not recorded")

type Recorder struct {
	db store.Store

	sink notify.Sink

	loc *time.Location

	startTimeMap syncmap.Map[string, time.Time]
}

// New creates a recorder that keys snapshots by the trading day in the given
// location.
func New(db store.Store, sink notify.Sink, loc *time.Location) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("store cannot be nil: %w", os.ErrInvalid)
	}
	if sink == nil {
		sink = notify.Log{}
	}
	if loc == nil {
		loc = time.UTC
	}
	r := &Recorder{
		db:   db,
		sink: sink,
		loc:  loc,
	}
	return r, nil
}

// SetStartTime sets the baseline time used for the symbol's snapshots.
func (r *Recorder) SetStartTime(symbol string, at time.Time) {
	r.startTimeMap.Store(symbol, at)
}

// Update returns the snapshot update for a crossing event.
func (r *Recorder) Update(event *tracker.Event) *store.Update {
	start, _ := r.startTimeMap.Load(event.Symbol)
	return &store.Update{
		Symbol:                event.Symbol,
		Date:                  store.Date(event.Time, r.loc),
		StartPrice:            event.StartPrice,
		StartPriceTime:        start,
		InitialThresholdPrice: event.CurrentPrice,
		PreviousThreshold:     event.CurrentPrice,
		PipsFromStart:         event.PipsFromStart.Round(1),
		Direction:             event.Direction,
		Thresholds:            event.Thresholds,
		Timestamp:             event.Time,
	}
}

// Persist upserts the snapshot for the crossing event and sends a
// notification. The notification is sent even when the store fails, and
// tells whether the crossing was recorded.
func (r *Recorder) Persist(ctx context.Context, event *tracker.Event) error {
	u := r.Update(event)
	created, err := r.db.Upsert(ctx, u)

	text := fmt.Sprintf("Price moved %s pips %s for %s from %s to %s (start price %s)",
		event.PipsFromPrevious.Abs().StringFixed(1), event.Direction, event.Symbol,
		event.PreviousThreshold, event.CurrentPrice, event.StartPrice)

	if err != nil {
		metrics.Records.WithLabelValues(event.Symbol, "failed").Inc()
		slog.Error("could not record crossing", "event", event, "err", err)
		r.notify(ctx, event.Time, fmt.Sprintf("%s. NOT recorded: %v", text, err))
		return fmt.Errorf("could not save snapshot for %s on %s: %w: %w", u.Symbol, u.Date, ErrNotRecorded, err)
	}

	kind := "updated"
	if created {
		kind = "new"
	}
	metrics.Records.WithLabelValues(event.Symbol, kind).Inc()
	metrics.PipsFromStart.WithLabelValues(event.Symbol, event.Direction.String()).Set(event.PipsFromStart.InexactFloat64())
	slog.Info("recorded crossing", "event", event, "document", kind)

	r.notify(ctx, event.Time, fmt.Sprintf("%s. Recorded (%s document for %s on %s)", text, kind, u.Symbol, u.Date))
	return nil
}

func (r *Recorder) notify(ctx context.Context, at time.Time, text string) {
	if err := r.sink.SendMessage(ctx, at, text); err != nil {
		slog.Warn("could not send crossing notification (ignored)", "err", err)
	}
}
