// Copyright (c) 2023 BVK Chaitanya

// Package server wires the pipwatch collaborators together and owns their
// lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/pipwatch/baseline"
	"github.com/bvk/pipwatch/config"
	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/monitor"
	"github.com/bvk/pipwatch/mt5bridge"
	"github.com/bvk/pipwatch/notify"
	"github.com/bvk/pipwatch/paper"
	"github.com/bvk/pipwatch/pushover"
	"github.com/bvk/pipwatch/recorder"
	"github.com/bvk/pipwatch/store"
	"github.com/bvk/pipwatch/store/pgstore"
	"github.com/bvk/pipwatch/telegram"
	"github.com/bvkgo/kv"
)

type Server struct {
	cg ctxutil.CloseGroup

	cfg  *config.Config
	opts Options

	db  kv.Database
	loc *time.Location

	startTime time.Time

	store   store.Store
	pgStore *pgstore.Store

	bridge  *mt5bridge.Client
	feed    exchange.Feed
	gateway exchange.Gateway

	queue          *notify.Queue
	telegramClient *telegram.Client

	resolver   *baseline.Resolver
	recorder   *recorder.Recorder
	supervisor *monitor.Supervisor
}

// New creates the collaborators for all configured instruments. Key-value
// database holds the snapshots for the badger backend and the telegram bot
// state for all backends.
func New(ctx context.Context, db kv.Database, cfg *config.Config, secrets *Secrets, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if secrets == nil {
		secrets = new(Secrets)
	}
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	bopts, err := cfg.BaselineOptions()
	if err != nil {
		return nil, err
	}
	mopts, err := cfg.MonitorOptions()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		opts:      *opts,
		db:        db,
		loc:       bopts.Location,
		startTime: time.Now(),
	}
	defer func() {
		if status != nil {
			s.Close()
		}
	}()

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}
	if err := s.openExchange(secrets); err != nil {
		return nil, err
	}

	sinks := []notify.Sink{notify.Log{}}
	if secrets.Pushover != nil {
		client, err := pushover.New(secrets.Pushover, "pipwatch")
		if err != nil {
			return nil, fmt.Errorf("could not create pushover client: %w", err)
		}
		sinks = append(sinks, client)
	}
	if secrets.Telegram != nil {
		client, err := telegram.New(ctx, db, secrets.Telegram, s.loc)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		s.telegramClient = client
		sinks = append(sinks, client)
	}
	s.queue = notify.NewQueue(&opts.Notify, sinks...)

	resolver, err := baseline.New(s.feed, s.store, s.queue, bopts)
	if err != nil {
		return nil, fmt.Errorf("could not create baseline resolver: %w", err)
	}
	s.resolver = resolver

	rec, err := recorder.New(s.store, s.queue, s.loc)
	if err != nil {
		return nil, fmt.Errorf("could not create event recorder: %w", err)
	}
	s.recorder = rec

	var monitors []*monitor.Monitor
	for _, inst := range cfg.Instruments {
		m, err := monitor.New(inst, s.feed, s.gateway, s.resolver, s.recorder, s.queue, mopts)
		if err != nil {
			return nil, fmt.Errorf("could not create monitor for %s: %w", inst.Symbol, err)
		}
		monitors = append(monitors, m)
	}
	supervisor, err := monitor.NewSupervisor(monitors...)
	if err != nil {
		return nil, err
	}
	s.supervisor = supervisor

	if s.telegramClient != nil && opts.BotCommands {
		if err := s.addBotCommands(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) openStore(ctx context.Context) error {
	switch s.cfg.Store.Backend {
	case config.PostgresBackend:
		pg, err := pgstore.New(ctx, s.cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		s.pgStore = pg
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		s.store = pg
	default:
		s.store = store.NewKV(s.db)
	}
	return nil
}

func (s *Server) openExchange(secrets *Secrets) error {
	if s.opts.Feed != nil {
		s.feed = s.opts.Feed
		s.gateway = s.opts.Gateway
		if s.gateway == nil {
			s.gateway = paper.New(s.feed)
		}
		return nil
	}

	if secrets.MT5Bridge == nil {
		return fmt.Errorf("mt5bridge credentials are required in the secrets file")
	}
	bridge, err := mt5bridge.New(secrets.MT5Bridge.Login, secrets.MT5Bridge.Secret, s.cfg.BridgeOptions())
	if err != nil {
		return fmt.Errorf("could not create bridge client: %w", err)
	}
	s.bridge = bridge
	if s.cfg.Bridge.Websocket {
		bridge.WatchTicks(s.cfg.Symbols())
	}

	s.feed = bridge
	s.gateway = bridge
	if s.cfg.Trade.DryRun {
		slog.Warn("dry-run mode is enabled; orders are simulated with the paper gateway")
		s.gateway = paper.New(bridge)
	}
	return nil
}

func (s *Server) Close() error {
	s.cg.Close()

	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.telegramClient != nil {
		errs = append(errs, s.telegramClient.Close())
	}
	if s.bridge != nil {
		errs = append(errs, s.bridge.Close())
	}
	if s.pgStore != nil {
		errs = append(errs, s.pgStore.Close())
	}
	return errors.Join(errs...)
}

// Run runs all monitors till the context is canceled. Returned error holds
// the failures of monitors that terminated early.
func (s *Server) Run(ctx context.Context) error {
	if s.pgStore != nil && s.cfg.Store.RetentionDays > 0 {
		s.cg.GoEvery(24*time.Hour, s.prune)
	}
	if err := s.queue.Sendf(ctx, "Pipwatch started with %d instrument(s)", len(s.cfg.Instruments)); err != nil {
		slog.Warn("could not send startup notification (ignored)", "err", err)
	}
	return s.supervisor.Run(ctx)
}

func (s *Server) prune(ctx context.Context) {
	before := time.Now().In(s.loc).AddDate(0, 0, -s.cfg.Store.RetentionDays)
	n, err := s.pgStore.Prune(ctx, before)
	if err != nil {
		slog.Warn("could not prune old snapshots (will retry)", "err", err)
		return
	}
	if n > 0 {
		slog.Info("pruned old snapshots", "count", n, "before", store.Date(before, s.loc))
	}
}

func (s *Server) Supervisor() *monitor.Supervisor {
	return s.supervisor
}

func (s *Server) Store() store.Store {
	return s.store
}

func (s *Server) Resolver() *baseline.Resolver {
	return s.resolver
}
