// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"fmt"
	"os"

	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/notify"
)

type Options struct {
	// Feed and Gateway when non-nil are used instead of the bridge client.
	Feed    exchange.Feed
	Gateway exchange.Gateway

	// BotCommands when true registers the status and snapshot commands with
	// the telegram bot.
	BotCommands bool

	Notify notify.Options
}

func (v *Options) Check() error {
	if v.Gateway != nil && v.Feed == nil {
		return fmt.Errorf("gateway override needs a feed override: %w", os.ErrInvalid)
	}
	return nil
}
