// Copyright (c) 2025 BVK Chaitanya

// Package config loads the pipwatch configuration from a YAML file with
// PIPWATCH_* environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bvk/pipwatch/baseline"
	"github.com/bvk/pipwatch/envfile"
	"github.com/bvk/pipwatch/lifecycle"
	"github.com/bvk/pipwatch/monitor"
	"github.com/bvk/pipwatch/mt5bridge"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "PIPWATCH"

// EnvFile is the name of the user env file loaded before processing
// environment overrides.
const EnvFile = ".pipwatch.env"

const (
	BadgerBackend   = "badger"
	PostgresBackend = "postgres"
)

type Baseline struct {
	Timezone string `yaml:"timezone" envconfig:"TIMEZONE"`

	// Cutoff and fallback fields are pointers because zero is a valid value.
	CutoffHour     *int `yaml:"cutoff_hour" envconfig:"CUTOFF_HOUR"`
	CutoffMinute   *int `yaml:"cutoff_minute" envconfig:"CUTOFF_MINUTE"`
	FallbackMinute *int `yaml:"fallback_minute" envconfig:"FALLBACK_MINUTE"`

	OpenPollInterval time.Duration `yaml:"open_poll_interval" envconfig:"OPEN_POLL_INTERVAL"`
	RetryInterval    time.Duration `yaml:"retry_interval" envconfig:"RETRY_INTERVAL"`

	ResumptionDays []string `yaml:"resumption_days" envconfig:"RESUMPTION_DAYS"`
}

type Trade struct {
	// Volume is the order size in lots as a decimal string.
	Volume string `yaml:"volume" envconfig:"VOLUME"`

	// DryRun when true routes all orders to the in-memory paper gateway.
	DryRun bool `yaml:"dry_run" envconfig:"DRY_RUN"`

	Deviation int   `yaml:"deviation" envconfig:"DEVIATION"`
	Magic     int64 `yaml:"magic" envconfig:"MAGIC"`

	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

type Store struct {
	Backend     string `yaml:"backend" envconfig:"BACKEND"`
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`

	// RetentionDays when positive removes older snapshots from the postgres
	// store once a day.
	RetentionDays int `yaml:"retention_days" envconfig:"RETENTION_DAYS"`
}

type Bridge struct {
	URL string `yaml:"url" envconfig:"URL"`

	// Websocket enables the streaming tick subscription.
	Websocket bool `yaml:"websocket" envconfig:"WEBSOCKET"`

	RequestsPerSecond float64 `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
}

type Config struct {
	Instruments []monitor.Instrument `yaml:"instruments" ignored:"true"`

	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	FeedTimeout  time.Duration `yaml:"feed_timeout" envconfig:"FEED_TIMEOUT"`

	Baseline Baseline `yaml:"baseline" envconfig:"BASELINE"`
	Trade    Trade    `yaml:"trade" envconfig:"TRADE"`
	Store    Store    `yaml:"store" envconfig:"STORE"`
	Bridge   Bridge   `yaml:"bridge" envconfig:"BRIDGE"`
}

func intp(v int) *int {
	return &v
}

func (v *Config) setDefaults() {
	defaults := baseline.DefaultOptions()
	if v.Baseline.CutoffHour == nil {
		v.Baseline.CutoffHour = intp(defaults.CutoffHour)
	}
	if v.Baseline.CutoffMinute == nil {
		v.Baseline.CutoffMinute = intp(defaults.CutoffMinute)
	}
	if v.Baseline.FallbackMinute == nil {
		v.Baseline.FallbackMinute = intp(defaults.FallbackMinute)
	}
	if len(v.Baseline.Timezone) == 0 {
		v.Baseline.Timezone = "Asia/Kolkata"
	}
	if len(v.Trade.Volume) == 0 {
		v.Trade.Volume = "0.1"
	}
	if len(v.Store.Backend) == 0 {
		v.Store.Backend = BadgerBackend
	}
	for i := range v.Instruments {
		v.Instruments[i].Symbol = strings.ToUpper(strings.TrimSpace(v.Instruments[i].Symbol))
	}
}

func (v *Config) Check() error {
	if len(v.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required: %w", os.ErrInvalid)
	}
	seen := make(map[string]bool)
	for i := range v.Instruments {
		inst := &v.Instruments[i]
		if err := inst.Check(); err != nil {
			return fmt.Errorf("instrument %d is invalid: %w", i, err)
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("instrument %s is repeated: %w", inst.Symbol, os.ErrInvalid)
		}
		seen[inst.Symbol] = true
	}
	if v.Store.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative: %w", os.ErrInvalid)
	}
	if v.PollInterval < 0 || v.FeedTimeout < 0 || v.Baseline.RetryInterval < 0 || v.Baseline.OpenPollInterval < 0 {
		return fmt.Errorf("intervals cannot be negative: %w", os.ErrInvalid)
	}
	if _, err := v.BaselineOptions(); err != nil {
		return err
	}
	if _, err := v.LifecycleOptions(); err != nil {
		return err
	}
	switch v.Store.Backend {
	case BadgerBackend:
	case PostgresBackend:
		if len(v.Store.PostgresDSN) == 0 {
			return fmt.Errorf("postgres store backend needs a dsn: %w", os.ErrInvalid)
		}
	default:
		return fmt.Errorf("unsupported store backend %q: %w", v.Store.Backend, os.ErrInvalid)
	}
	if !v.Trade.DryRun || len(v.Bridge.URL) != 0 {
		if err := v.BridgeOptions().Check(); err != nil {
			return err
		}
	}
	return nil
}

// Symbols returns the configured instrument symbols.
func (v *Config) Symbols() []string {
	var symbols []string
	for _, inst := range v.Instruments {
		symbols = append(symbols, inst.Symbol)
	}
	return symbols
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) || strings.EqualFold(s, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q: %w", s, os.ErrInvalid)
}

func (v *Config) BaselineOptions() (*baseline.Options, error) {
	loc, err := time.LoadLocation(v.Baseline.Timezone)
	if err != nil {
		if v.Baseline.Timezone != "Asia/Kolkata" {
			return nil, fmt.Errorf("could not load timezone %q: %w", v.Baseline.Timezone, err)
		}
		loc = baseline.DefaultLocation()
	}
	opts := &baseline.Options{
		Location:         loc,
		CutoffHour:       *v.Baseline.CutoffHour,
		CutoffMinute:     *v.Baseline.CutoffMinute,
		FallbackMinute:   *v.Baseline.FallbackMinute,
		OpenPollInterval: v.Baseline.OpenPollInterval,
		FeedTimeout:      v.FeedTimeout,
	}
	for _, s := range v.Baseline.ResumptionDays {
		d, err := parseWeekday(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		opts.ResumptionDays = append(opts.ResumptionDays, d)
	}
	if opts.OpenPollInterval == 0 {
		opts.OpenPollInterval = time.Minute
	}
	if opts.FeedTimeout == 0 {
		opts.FeedTimeout = 5 * time.Second
	}
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (v *Config) LifecycleOptions() (*lifecycle.Options, error) {
	volume, err := decimal.NewFromString(v.Trade.Volume)
	if err != nil {
		return nil, fmt.Errorf("could not parse trade volume %q: %w", v.Trade.Volume, os.ErrInvalid)
	}
	if !volume.IsPositive() {
		return nil, fmt.Errorf("trade volume must be positive: %w", os.ErrInvalid)
	}
	return &lifecycle.Options{Volume: volume, Timeout: v.Trade.Timeout}, nil
}

func (v *Config) MonitorOptions() (*monitor.Options, error) {
	lopts, err := v.LifecycleOptions()
	if err != nil {
		return nil, err
	}
	return &monitor.Options{
		PollInterval:          v.PollInterval,
		FeedTimeout:           v.FeedTimeout,
		BaselineRetryInterval: v.Baseline.RetryInterval,
		Lifecycle:             *lopts,
	}, nil
}

// BridgeOptions returns the bridge client options. Zero values are replaced
// with the client defaults.
func (v *Config) BridgeOptions() *mt5bridge.Options {
	opts := &mt5bridge.Options{
		BaseURL:           v.Bridge.URL,
		RequestsPerSecond: v.Bridge.RequestsPerSecond,
		Deviation:         v.Trade.Deviation,
		Magic:             v.Trade.Magic,
	}
	if len(opts.BaseURL) == 0 {
		opts.BaseURL = mt5bridge.BaseURL
	}
	return opts
}

// Parse decodes the YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := new(Config)
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("could not decode yaml config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides the configuration with PIPWATCH_* environment variables,
// eg: PIPWATCH_POLL_INTERVAL=2s or PIPWATCH_TRADE_DRY_RUN=true.
func (v *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, v); err != nil {
		return fmt.Errorf("could not process environment overrides: %w", err)
	}
	return nil
}

// Load reads the config file, applies the user env file and environment
// overrides, and validates the result. Env file is looked up next to the
// config file and then in the home directory; it is skipped when empty.
func Load(fpath, envFile string) (*Config, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(envFile) != 0 {
		dir, err := filepath.Abs(filepath.Dir(fpath))
		if err != nil {
			return nil, fmt.Errorf("could not determine config directory: %w", err)
		}
		if err := envfile.UpdateEnv(envFile, envfile.SearchDirs(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not load env file %q: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration in YAML.
func (v *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("could not encode yaml config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
