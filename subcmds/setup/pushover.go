// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"time"

	"github.com/bvk/pipwatch/pushover"
	"github.com/bvk/pipwatch/server"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type PushOver struct {
	cmdutil.DataFlags

	skipTesting bool

	appID  string
	userID string
}

func (c *PushOver) Purpose() string {
	return "Configures PushOver service API parameters"
}

func (c *PushOver) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("pushover", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.userID, "user-id", "", "PushOver service user identifier")
	fset.StringVar(&c.appID, "app-id", "", "PushOver service Application identifier")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "pushover", fset, cli.CmdFunc(c.run)
}

func (c *PushOver) Description() string {
	return `

Command "pushover" configures notifications through the Pushover service.

Pushover keys are optional. They are only required to receive notifications to
the mobile phones. They can be configured as follows:

  $ pipwatch setup pushover --app-id=awja5ue...ito7svf --user-id=uscjs2...tvp4kv

`
}

func (c *PushOver) run(ctx context.Context, args []string) error {
	keys := &pushover.Keys{
		ApplicationKey: c.appID,
		UserKey:        c.userID,
	}
	if err := keys.Check(); err != nil {
		return err
	}
	if !c.skipTesting {
		client, err := pushover.New(keys, "pipwatch")
		if err != nil {
			return err
		}
		if err := client.SendMessage(ctx, time.Now(), "Test message from Pushover config setup; please ignore."); err != nil {
			return err
		}
	}
	return updateSecrets(&c.DataFlags, func(s *server.Secrets) error {
		s.Pushover = keys
		return nil
	})
}
