// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/pipwatch/mt5bridge"
	"github.com/bvk/pipwatch/server"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Bridge struct {
	cmdutil.DataFlags

	skipTesting bool

	login      string
	url        string
	testSymbol string
}

func (c *Bridge) Purpose() string {
	return "Configures the MetaTrader 5 bridge credentials"
}

func (c *Bridge) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("mt5bridge", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.login, "login", "", "MetaTrader 5 account login")
	fset.StringVar(&c.url, "url", mt5bridge.BaseURL, "bridge service address used for testing")
	fset.StringVar(&c.testSymbol, "test-symbol", "EURUSD", "symbol used to test the credentials")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "mt5bridge", fset, cli.CmdFunc(c.run)
}

func (c *Bridge) Description() string {
	return `

Command "mt5bridge" saves the account login and the shared token secret for
the MetaTrader 5 bridge service. Secret is read from the terminal.

  $ pipwatch setup mt5bridge --login=5012345

`
}

func (c *Bridge) run(ctx context.Context, args []string) error {
	secret, err := readSecret("Bridge token secret")
	if err != nil {
		return err
	}
	creds := &server.BridgeCredentials{Login: c.login, Secret: secret}
	if err := creds.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		client, err := mt5bridge.New(creds.Login, creds.Secret, &mt5bridge.Options{BaseURL: c.url})
		if err != nil {
			return err
		}
		defer client.Close()

		tick, err := client.LatestTick(ctx, c.testSymbol)
		if err != nil {
			return fmt.Errorf("could not fetch test price from the bridge: %w", err)
		}
		fmt.Printf("%s bid %s ask %s\n", tick.Symbol, tick.Bid, tick.Ask)
	}

	return updateSecrets(&c.DataFlags, func(s *server.Secrets) error {
		s.MT5Bridge = creds
		return nil
	})
}
