// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/pipwatch/api"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/dustin/go-humanize"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.ClientFlags
}

func (c *Status) Purpose() string {
	return "Prints monitor status from the running pipwatch daemon"
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) run(ctx context.Context, args []string) error {
	resp, err := cmdutil.Get[api.StatusResponse](ctx, &c.ClientFlags, api.StatusPath, nil)
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	if p := resp.Process; p != nil {
		fmt.Fprintf(stdout, "pid %d up %s cpu %.1f%% rss %s threads %d fds %d\n",
			p.PID, p.Uptime, p.CPUPercent, humanize.IBytes(p.RSS), p.NumThreads, p.NumFDs)
	}
	if resp.DryRun {
		fmt.Fprintln(stdout, "dry-run mode: orders are simulated")
	}
	if len(resp.BridgeState) != 0 {
		fmt.Fprintf(stdout, "bridge circuit breaker is %s\n", resp.BridgeState)
	}
	fmt.Fprintln(stdout)

	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "Symbol\tPips\tState\tDate\tStart\tBid\tAsk\tPosition\tUp\tDown\tUpdated\tError\n")
	for _, m := range args2monitors(args, resp.Monitors) {
		position := "flat"
		if len(m.Position) != 0 {
			position = fmt.Sprintf("%s/%d", m.Position, m.ThresholdCount)
		}
		updated := ""
		if !m.UpdateTime.IsZero() {
			updated = m.UpdateTime.Local().Format(time.TimeOnly)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			m.Symbol, m.PipDifference, m.State, m.Date, m.StartPrice, m.Bid, m.Ask, position,
			max(0, len(m.UpThresholds)-1), max(0, len(m.DownThresholds)-1), updated, m.LastError)
	}
	return tw.Flush()
}

// args2monitors filters the monitors by symbols in the args.
func args2monitors(args []string, monitors []*api.Monitor) []*api.Monitor {
	if len(args) == 0 {
		return monitors
	}
	var selected []*api.Monitor
	for _, m := range monitors {
		if containsFold(args, m.Symbol) {
			selected = append(selected, m)
		}
	}
	return selected
}
