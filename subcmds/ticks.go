// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/mt5bridge"
	"github.com/bvk/pipwatch/pip"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/visvasity/cli"
	"github.com/visvasity/topic"
)

// Ticks prints the streamed ticks from the bridge websocket.
type Ticks struct {
	cmdutil.DataFlags

	count int
}

func (c *Ticks) Purpose() string {
	return "Prints live ticks streamed from the bridge"
}

func (c *Ticks) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("ticks", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.IntVar(&c.count, "count", 0, "stop after printing these many ticks when positive")
	return "ticks", fset, cli.CmdFunc(c.run)
}

func (c *Ticks) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

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

	symbols := cfg.Symbols()
	if len(args) != 0 {
		symbols = nil
		for _, arg := range args {
			symbols = append(symbols, strings.ToUpper(arg))
		}
	}

	cases := []reflect.SelectCase{{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())}}
	for _, symbol := range symbols {
		receiver, err := client.GetTickUpdates(symbol)
		if err != nil {
			return err
		}
		defer receiver.Close()

		ch, err := topic.ReceiveCh(receiver)
		if err != nil {
			return err
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	client.WatchTicks(symbols)

	stdout := cli.Stdout(ctx)
	for n := 0; c.count <= 0 || n < c.count; n++ {
		i, v, ok := reflect.Select(cases)
		if i == 0 {
			return nil
		}
		if !ok {
			return fmt.Errorf("tick stream is closed")
		}
		tick := v.Interface().(*exchange.Tick)
		spread := pip.Pips(tick.Symbol, tick.Spread())
		fmt.Fprintf(stdout, "%s %s bid %s ask %s spread %s pips\n", tick.Time.Local().Format(time.TimeOnly),
			tick.Symbol, tick.Bid, tick.Ask, spread.StringFixed(1))
	}
	return nil
}
