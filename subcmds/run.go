// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bvk/pipwatch/api"
	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/daemonize"
	"github.com/bvk/pipwatch/httputil"
	"github.com/bvk/pipwatch/server"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
	"golang.org/x/term"
)

type Run struct {
	cmdutil.ServerFlags
	cmdutil.DataFlags

	background bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof     bool
	noBotCmds   bool
	debugLog    bool
	logMaxBytes uint64
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	c.DataFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the daemon in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.noBotCmds, "no-bot-commands", false, "when true telegram bot commands are not registered")
	fset.BoolVar(&c.debugLog, "debug-log", false, "when true debug messages are logged")
	fset.Uint64Var(&c.logMaxBytes, "log-file-max-size", 64<<20, "max size of a log file in bytes")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs pipwatch monitors in foreground or background"
}

func (c *Run) Description() string {
	return `

Command "run" starts the pipwatch service. Service starts one monitor for each
instrument in the config file; each monitor resolves the daily baseline price,
tracks the pip threshold crossings and opens or closes positions through the
MetaTrader 5 bridge.

CONFIG FILE

Config file is a YAML file, <data-dir>/config.yaml by default:

    instruments:
      - symbol: EURUSD
        pip_difference: 20
    trade:
      volume: "0.1"
      dry_run: true

Values can be overridden with PIPWATCH_* environment variables, which are also
loaded from the first .pipwatch.env file found in the config file's directory
or the home directory. For example, PIPWATCH_TRADE_DRY_RUN=false.

SECRETS FILE

Bridge credentials and optional notification keys are read from a JSON
secrets file, <data-dir>/secrets.json by default:

    {
        "mt5bridge":{
            "login":"5012345",
            "secret":"2222222222"
        }
    }

Use "pipwatch setup" commands to create the secrets file.

`
}

// setupLogging installs the default slog handler. Log files are used unless
// the process is in foreground on a terminal. Returned function flushes and
// closes the log backend.
func (c *Run) setupLogging(dataDir string) func() {
	level := slog.LevelInfo
	if c.debugLog {
		level = slog.LevelDebug
	}
	if !c.background && term.IsTerminal(int(os.Stderr.Fd())) {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
		return func() {}
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		slog.Warn("could not create log directory (ignored)", "dir", logDir, "err", err)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs:              []string{logDir},
		LogFileMaxSize:       c.logMaxBytes,
		LogFileReuseDuration: time.Hour,
	})
	if c.debugLog {
		backend.SetLevel(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(backend.Handler()))
	return backend.Close
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, err := c.DataFlags.DataDir()
	if err != nil {
		return err
	}
	cfg, err := c.DataFlags.LoadConfig()
	if err != nil {
		return err
	}
	secrets, err := c.DataFlags.LoadSecrets()
	if err != nil {
		return err
	}
	addr, err := c.ServerFlags.TCPAddr()
	if err != nil {
		return err
	}

	// Health checker for the background process initialization. We need to
	// verify that responding http server is really our child and not an older
	// instance.
	check := func(ctx context.Context) error {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s%s", addr, api.PIDPath))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		ppid, err := strconv.Atoi(string(data))
		if err != nil {
			return err
		}
		if ppid == os.Getpid() {
			return nil
		}
		return fmt.Errorf("is another instance already running? parent pid mismatch: want %d got %d", os.Getpid(), ppid)
	}

	if c.background {
		if err := daemonize.Daemonize(ctx, nil, check); err != nil {
			return err
		}
	}

	closeLogs := c.setupLogging(dataDir)
	defer closeLogs()

	slog.Info("using data directory", "dir", dataDir, "instruments", cfg.Symbols(), "dry-run", cfg.Trade.DryRun)

	lockPath := filepath.Join(dataDir, "pipwatch.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.Info("waiting for the previous instance to shutdown", "pid", owner.Pid)
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Start HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	tcpServer, err := s.StartTCP(ctx, addr)
	if err != nil {
		return fmt.Errorf("could not start http server on %s: %w", addr, err)
	}
	defer s.Stop(tcpServer)

	if !c.noPprof {
		s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
		s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
		s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
	}

	// Open the database.
	bopts := badger.DefaultOptions(filepath.Join(dataDir, "db"))
	bopts.Logger = nil
	bdb, err := badger.Open(bopts)
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, cmdutil.IsGoodKey)

	sopts := &server.Options{
		BotCommands: !c.noBotCmds,
	}
	pw, err := server.New(ctx, db, cfg, secrets, sopts)
	if err != nil {
		return err
	}
	defer pw.Close()

	handlers := pw.HandlerMap()
	for k, v := range handlers {
		s.AddHandler(k, v)
	}
	defer func() {
		for k := range handlers {
			s.RemoveHandler(k)
		}
	}()

	// Background process check expects the parent pid, which is our own pid
	// when running in the foreground.
	s.AddHandler(api.PIDPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pid := os.Getpid()
		if daemonize.IsChild() {
			pid = daemonize.ParentPID()
		}
		io.WriteString(w, strconv.Itoa(pid))
	}))

	slog.Info("started pipwatch server", "addr", addr)
	if err := pw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("some monitors have terminated", "err", err)
		<-ctx.Done()
	}
	slog.Info("pipwatch server is shutting down")
	return nil
}
