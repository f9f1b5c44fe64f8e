// Copyright (c) 2024 BVK Chaitanya

// Package timerange defines half-open time ranges over trading days.
package timerange

import (
	"time"
)

// Range is a half-open interval [Begin, End).
type Range struct {
	Begin, End time.Time
}

func (r *Range) InRange(v time.Time) bool {
	if !r.Begin.IsZero() && v.Before(r.Begin) {
		return false
	}
	if !r.End.IsZero() && !v.Before(r.End) {
		return false
	}
	return true
}

// Dates returns the calendar dates of every day that begins inside the range,
// formatted with the layout, in ascending order. Both ends must be set.
func (r *Range) Dates(layout string) []string {
	if r.Begin.IsZero() || r.End.IsZero() {
		return nil
	}
	var dates []string
	b := r.Begin
	first := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())
	if first.Before(b) {
		first = first.AddDate(0, 0, 1)
	}
	for d := first; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(layout))
	}
	return dates
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Today returns the range of the current day in the zone.
func Today(zone *time.Location) *Range {
	return LastDays(zone, time.Now(), 1)
}

// LastDays returns the range of `n` days ending with the day of `now`.
func LastDays(zone *time.Location, now time.Time, n int) *Range {
	if zone == nil {
		zone = time.Local
	}
	if n < 1 {
		n = 1
	}
	end := startOfDay(now.In(zone)).AddDate(0, 0, 1)
	return &Range{
		Begin: end.AddDate(0, 0, -n),
		End:   end,
	}
}

// ThisWeek returns the range from the last Sunday to the next Sunday.
func ThisWeek(zone *time.Location, now time.Time) *Range {
	if zone == nil {
		zone = time.Local
	}
	now = now.In(zone)
	begin := startOfDay(now).AddDate(0, 0, -int(now.Weekday()))
	return &Range{Begin: begin, End: begin.AddDate(0, 0, 7)}
}
