// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bvk/pipwatch/api"
	"github.com/bvk/pipwatch/baseline"
	"github.com/bvk/pipwatch/store"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/bvk/pipwatch/timerange"
	"github.com/visvasity/cli"
)

type Snapshots struct {
	cmdutil.ClientFlags

	date     string
	days     int
	timezone string
}

func (c *Snapshots) Purpose() string {
	return "Prints recorded daily snapshots from the running pipwatch daemon"
}

func (c *Snapshots) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.date, "date", "", "trading day in YYYY-MM-DD format (default today)")
	fset.IntVar(&c.days, "days", 1, "number of trading days ending with the date")
	fset.StringVar(&c.timezone, "timezone", "Asia/Kolkata", "reference timezone for trading days")
	return "snapshots", fset, cli.CmdFunc(c.run)
}

func (c *Snapshots) dates() ([]string, error) {
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		loc = baseline.DefaultLocation()
	}
	end := time.Now()
	if len(c.date) != 0 {
		v, err := time.ParseInLocation(store.DateLayout, c.date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", c.date, err)
		}
		end = v
	}
	return timerange.LastDays(loc, end, c.days).Dates(store.DateLayout), nil
}

func (c *Snapshots) run(ctx context.Context, args []string) error {
	dates, err := c.dates()
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "Date\tSymbol\tStart\tStartTime\tDirection\tPips\tPrevious\tThresholds\tUpdated\n")
	for _, date := range dates {
		resp, err := cmdutil.Get[api.SnapshotsResponse](ctx, &c.ClientFlags, api.SnapshotsPath, url.Values{"date": {date}})
		if err != nil {
			return err
		}
		for _, v := range resp.Snapshots {
			if len(args) != 0 && !containsFold(args, v.Symbol) {
				continue
			}
			var prices []string
			for _, p := range v.Thresholds {
				prices = append(prices, p.String())
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				v.Date, v.Symbol, v.StartPrice, v.StartPriceTime.Format(time.DateTime), v.Direction,
				v.PipsFromStart, v.PreviousThreshold, strings.Join(prices, ","), v.UpdateTime.Local().Format(time.DateTime))
		}
	}
	return tw.Flush()
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
