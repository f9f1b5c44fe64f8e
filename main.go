// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/pipwatch/subcmds"
	"github.com/bvk/pipwatch/subcmds/db"
	"github.com/bvk/pipwatch/subcmds/setup"
	"github.com/visvasity/cli"
)

func main() {
	dbCmds := []cli.Command{
		new(db.Get),
		new(db.Set),
		new(db.Delete),
		new(db.List),
		new(db.Backup),
		new(db.Restore),
	}

	setupCmds := []cli.Command{
		new(setup.Bridge),
		new(setup.PushOver),
		new(setup.Telegram),
	}

	bridgeCmds := []cli.Command{
		new(subcmds.Ticks),
		new(subcmds.Baseline),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Snapshots),
		new(subcmds.IDGen),
		cli.NewGroup("setup", "Configure credentials for external services", setupCmds...),
		cli.NewGroup("bridge", "Query the trading terminal bridge directly", bridgeCmds...),
		cli.NewGroup("db", "View/update database directly", dbCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
