// Copyright (c) 2023 BVK Chaitanya

// Package daemonize respawns the pipwatch process in the background.
package daemonize

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"log/syslog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"golang.org/x/sys/unix"
)

// EnvKey identifies the background process. When set, it holds the parent
// process pid.
var EnvKey = "PIPWATCH_DAEMONIZE"

// Options control the daemon startup.
type Options struct {
	// SyslogTag is the tag used for standard library log messages in the
	// background process.
	SyslogTag string

	// CheckInterval is the delay between readiness checks.
	CheckInterval time.Duration
}

func (v *Options) setDefaults() {
	if len(v.SyslogTag) == 0 {
		v.SyslogTag = "pipwatch"
	}
	if v.CheckInterval <= 0 {
		v.CheckInterval = time.Second
	}
}

// IsChild returns true if current process is a background process started
// by Daemonize.
func IsChild() bool {
	return len(os.Getenv(EnvKey)) != 0
}

// ParentPID returns the pid of the process that spawned the current
// background process or zero.
func ParentPID() int {
	pid, err := strconv.Atoi(os.Getenv(EnvKey))
	if err != nil {
		return 0
	}
	return pid
}

// childEnv returns the environment for the background process. PIPWATCH_*
// overrides must reach the child process, so current environment is carried
// over.
func childEnv(environ []string, pid int) []string {
	env := make([]string, 0, len(environ)+1)
	prefix := EnvKey + "="
	for _, kv := range environ {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			continue
		}
		env = append(env, kv)
	}
	return append(env, prefix+strconv.Itoa(pid))
}

// Daemonize respawns the current program in the background with the same
// command-line arguments. It must be called during startup before opening
// databases or starting servers.
//
// Parent process uses the check function to wait for the background process
// to initialize or die. On success, parent process exits with zero status and
// Daemonize returns nil in the background process. On failure, Daemonize
// returns non-nil error in the parent process.
func Daemonize(ctx context.Context, opts *Options, check func(context.Context) error) error {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	if !IsChild() {
		if err := daemonizeParent(ctx, opts, check); err != nil {
			return err
		}
		os.Exit(0)
	}
	if err := daemonizeChild(opts); err != nil {
		os.Exit(1)
	}
	return nil
}

func daemonizeParent(ctx context.Context, opts *Options, check func(context.Context) error) error {
	binary, err := exec.LookPath(os.Args[0])
	if err != nil {
		return fmt.Errorf("could not lookup binary: %w", err)
	}
	binaryPath, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for binary: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	// Receive signal when child-process dies.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGCHLD, os.Interrupt)
	defer stop()

	attr := &os.ProcAttr{
		Dir:   "/",
		Env:   childEnv(os.Environ(), os.Getpid()),
		Files: []*os.File{devnull, devnull, devnull},
	}
	proc, err := os.StartProcess(binaryPath, os.Args, attr)
	if err != nil {
		return fmt.Errorf("could not start background process: %w", err)
	}
	slog.InfoContext(ctx, "started background process", "pid", proc.Pid)

	if check != nil {
		ctxutil.Sleep(ctx, opts.CheckInterval)
		for ctx.Err() == nil {
			if err := check(ctx); err != nil {
				slog.WarnContext(ctx, "daemon process not yet initialized", "pid", proc.Pid, "err", err)
				ctxutil.Sleep(ctx, opts.CheckInterval)
				continue
			}
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("could not initialize the background process: %w", err)
	}
	return nil
}

func daemonizeChild(opts *Options) error {
	syslogger, err := syslog.New(syslog.LOG_INFO, opts.SyslogTag)
	if err != nil {
		return fmt.Errorf("could not create syslog: %w", err)
	}
	log.SetOutput(syslogger)

	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("could not set session id: %w", err)
	}
	return nil
}
