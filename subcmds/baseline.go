// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/bvk/pipwatch/baseline"
	"github.com/bvk/pipwatch/mt5bridge"
	"github.com/bvk/pipwatch/store"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/visvasity/cli"
)

// Baseline resolves the baseline prices once without tracking or saving
// them.
type Baseline struct {
	cmdutil.DataFlags

	timeout time.Duration
}

func (c *Baseline) Purpose() string {
	return "Resolves today's baseline prices from the bridge without tracking"
}

func (c *Baseline) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("baseline", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.DurationVar(&c.timeout, "timeout", time.Minute, "max time to wait for each baseline")
	return "baseline", fset, cli.CmdFunc(c.run)
}

func (c *Baseline) run(ctx context.Context, args []string) error {
	cfg, err := c.DataFlags.LoadConfig()
	if err != nil {
		return err
	}
	secrets, err := c.DataFlags.LoadSecrets()
	if err != nil {
		return err
	}
	if secrets.MT5Bridge == nil {
		return fmt.Errorf("mt5bridge credentials are required in the secrets file")
	}
	client, err := mt5bridge.New(secrets.MT5Bridge.Login, secrets.MT5Bridge.Secret, cfg.BridgeOptions())
	if err != nil {
		return err
	}
	defer client.Close()

	bopts, err := cfg.BaselineOptions()
	if err != nil {
		return err
	}
	resolver, err := baseline.New(client, store.NewKV(kvmemdb.New()), nil, bopts)
	if err != nil {
		return err
	}

	symbols := cfg.Symbols()
	if len(args) != 0 {
		symbols = nil
		for _, arg := range args {
			symbols = append(symbols, strings.ToUpper(arg))
		}
	}

	stdout := cli.Stdout(ctx)
	now := time.Now()
	for _, symbol := range symbols {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		b, err := resolver.Resolve(rctx, symbol, now)
		cancel()
		if err != nil {
			if errors.Is(err, baseline.ErrDeferred) {
				fmt.Fprintf(stdout, "%s: deferred till %s\n", symbol, resolver.NextAttempt(now).Format(time.DateTime))
				continue
			}
			fmt.Fprintf(stdout, "%s: %v\n", symbol, err)
			continue
		}
		fmt.Fprintln(stdout, b)
	}
	return nil
}
