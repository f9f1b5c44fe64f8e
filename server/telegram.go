// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/pipwatch/api"
	"github.com/bvk/pipwatch/store"
	"github.com/bvk/pipwatch/timerange"
	"github.com/visvasity/cli"
)

func (s *Server) addBotCommands(ctx context.Context) error {
	if err := s.telegramClient.AddCommand(ctx, "status", "Prints monitor status for all or given symbols", s.statusBotCmd); err != nil {
		return fmt.Errorf("could not add status command: %w", err)
	}
	if err := s.telegramClient.AddCommand(ctx, "snapshot", "Prints recorded snapshots for today, yesterday, this-week or last-N-days", s.snapshotBotCmd); err != nil {
		return fmt.Errorf("could not add snapshot command: %w", err)
	}
	return nil
}

func writeMonitor(w io.Writer, m *api.Monitor) {
	fmt.Fprintf(w, "%s (%d pips): %s", m.Symbol, m.PipDifference, m.State)
	if len(m.Date) != 0 {
		fmt.Fprintf(w, "\n  start %s on %s (%s)", m.StartPrice, m.Date, m.BaselineSource)
	}
	if pips, ok := pipsFromStart(m); ok {
		fmt.Fprintf(w, "\n  bid %s ask %s (%s pips)", m.Bid, m.Ask, pips.StringFixed(1))
	}
	if len(m.Position) != 0 {
		fmt.Fprintf(w, "\n  open %s position after %d threshold(s)", m.Position, m.ThresholdCount)
	} else {
		fmt.Fprintf(w, "\n  no open position")
	}
	fmt.Fprintf(w, "\n  up thresholds %v\n  down thresholds %v", m.UpThresholds, m.DownThresholds)
	if len(m.LastError) != 0 {
		fmt.Fprintf(w, "\n  last error: %s", m.LastError)
	}
	fmt.Fprintln(w)
}

func (s *Server) statusBotCmd(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	resp := s.status(ctx)
	if resp.DryRun {
		fmt.Fprintln(stdout, "Dry-run mode")
	}
	found := false
	for _, m := range resp.Monitors {
		if len(args) != 0 && !containsFold(args, m.Symbol) {
			continue
		}
		writeMonitor(stdout, m)
		found = true
	}
	if !found {
		return fmt.Errorf("no monitors for %v: %w", args, os.ErrNotExist)
	}
	return nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// parsePeriod converts a period name into a date range in the zone.
func parsePeriod(zone *time.Location, now time.Time, name string) (*timerange.Range, error) {
	switch name := strings.ToLower(name); {
	case name == "" || name == "today":
		return timerange.LastDays(zone, now, 1), nil
	case name == "yesterday":
		r := timerange.LastDays(zone, now, 2)
		r.End = r.End.AddDate(0, 0, -1)
		return r, nil
	case name == "this-week":
		return timerange.ThisWeek(zone, now), nil
	case strings.HasPrefix(name, "last-"):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "last-"), "-days"))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid period %q: %w", name, os.ErrInvalid)
		}
		return timerange.LastDays(zone, now, n), nil
	}
	return nil, fmt.Errorf("invalid/unsupported period %q: %w", name, os.ErrInvalid)
}

func (s *Server) snapshotBotCmd(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	period := ""
	if len(args) > 0 {
		period = args[0]
	}
	r, err := parsePeriod(s.loc, time.Now(), period)
	if err != nil {
		return err
	}
	symbols := args[min(1, len(args)):]

	count := 0
	for _, date := range r.Dates(store.DateLayout) {
		snapshots, err := s.store.List(ctx, date)
		if err != nil {
			return err
		}
		for _, v := range snapshots {
			if len(symbols) != 0 && !containsFold(symbols, v.Symbol) {
				continue
			}
			fmt.Fprintf(stdout, "%s %s: start %s, last %s %s pips at %s, thresholds %v\n",
				v.Date, v.Symbol, v.StartPrice, v.Direction, v.PipsFromStart,
				v.Timestamp.In(s.loc).Format(time.TimeOnly), v.Thresholds)
			count++
		}
	}
	if count == 0 {
		fmt.Fprintln(stdout, "No snapshots")
	}
	return nil
}
