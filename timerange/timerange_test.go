// Copyright (c) 2025 BVK Chaitanya

package timerange

import (
	"slices"
	"testing"
	"time"
)

func TestLastDays(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 1, 7, 1, 0, 0, 0, ist)

	r := LastDays(ist, now, 3)
	want := []string{"2025-01-05", "2025-01-06", "2025-01-07"}
	if got := r.Dates(time.DateOnly); !slices.Equal(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	if !r.InRange(now) || r.InRange(r.End) {
		t.Fatalf("range must include now and exclude the end")
	}

	// Same instant in UTC is still the 6th.
	if got := LastDays(time.UTC, now, 1).Dates(time.DateOnly); !slices.Equal(got, []string{"2025-01-06"}) {
		t.Fatalf("want 2025-01-06 in utc, got %v", got)
	}
}

func TestThisWeek(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC) // Wednesday
	r := ThisWeek(time.UTC, now)
	if r.Begin.Weekday() != time.Sunday || r.End.Sub(r.Begin) != 7*24*time.Hour {
		t.Fatalf("unexpected week range %v - %v", r.Begin, r.End)
	}
	if n := len(r.Dates(time.DateOnly)); n != 7 {
		t.Fatalf("want 7 dates, got %d", n)
	}
}
