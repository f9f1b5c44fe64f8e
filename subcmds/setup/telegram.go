// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/server"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/bvk/pipwatch/telegram"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/visvasity/cli"
)

type Telegram struct {
	cmdutil.DataFlags

	skipTesting bool

	ownerID  string
	adminID  string
	botToken string
}

func (c *Telegram) Purpose() string {
	return "Configures the Telegram bot for notifications and commands"
}

func (c *Telegram) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("telegram", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.ownerID, "owner-id", "", "Owner's telegram user id")
	fset.StringVar(&c.adminID, "admin-id", "", "Administrator's telegram user id")
	fset.StringVar(&c.botToken, "bot-token", "", "Telegram bot's authentication token (prompted when empty)")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "telegram", fset, cli.CmdFunc(c.run)
}

func (c *Telegram) Description() string {
	return `

Command "telegram" configures notifications to a Telegram account through a
Telegram bot. Bot also answers /status and /snapshot commands from the
configured users.

Telegram configuration is optional. It can be configured as follows:

  $ pipwatch setup telegram --owner-id=username --bot-token=USCJS2...TVP4KV

`
}

func (c *Telegram) run(ctx context.Context, args []string) error {
	if len(c.botToken) == 0 {
		token, err := readSecret("Telegram bot token")
		if err != nil {
			return err
		}
		c.botToken = token
	}
	secrets := &telegram.Secrets{
		OwnerID:  c.ownerID,
		AdminID:  c.adminID,
		BotToken: c.botToken,
	}
	if err := secrets.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		fmt.Println("Start a chat with telegram bot and then press any key")
		if err := waitForKey(); err != nil {
			return err
		}
		client, err := telegram.New(ctx, kvmemdb.New(), secrets, time.Local)
		if err != nil {
			return err
		}
		defer client.Close()

		ctxutil.Sleep(ctx, time.Second)
		if err := client.SendMessage(ctx, time.Now(), "Test message from Telegram config setup; please ignore."); err != nil {
			return err
		}
	}

	return updateSecrets(&c.DataFlags, func(s *server.Secrets) error {
		s.Telegram = secrets
		return nil
	})
}
