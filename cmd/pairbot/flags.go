package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/pairbot/config"
	"github.com/alejandrodnm/pairbot/internal/application/engine/pair"
	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/schedule"
)

type cliFlags struct {
	configPath string
	report     bool
	since      time.Duration
	verbose    bool
	format     string
	dryRun     bool

	price, usd, shares float64
	up, down, slug     string
	postOnly           bool
	allowWeird         bool
	minEdge            float64

	start        string
	useSlugEpoch bool
	align        bool
	duration     time.Duration
	period       time.Duration
	repeat       bool
	maxWindows   int

	policy       string
	grace        time.Duration
	poll         time.Duration
	maxIdle      time.Duration
	minHedgeEdge float64

	feed    bool
	merge   bool
	approve bool
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "path to YAML config file (optional)")
	fs.BoolVar(&f.report, "report", false, "print the window journal and exit")
	fs.DurationVar(&f.since, "since", 24*time.Hour, "report: how far back to list windows")
	fs.BoolVar(&f.verbose, "verbose", false, "set log level to debug")
	fs.StringVar(&f.format, "format", "", "log format: text|json (overrides config)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "simulate orders against live books, sign nothing")

	fs.Float64Var(&f.price, "price", 0, "symmetric limit price of both legs, in (0,1)")
	fs.Float64Var(&f.usd, "usd", 0, "USDC budget per leg (ignored with -shares)")
	fs.Float64Var(&f.shares, "shares", 0, "explicit shares per leg")
	fs.StringVar(&f.up, "up", "", "UP token id")
	fs.StringVar(&f.down, "down", "", "DOWN token id")
	fs.StringVar(&f.slug, "slug", "", "market slug, e.g. btc-updown-15m-1760015700")
	fs.BoolVar(&f.postOnly, "post-only", true, "submit both legs post-only")
	fs.BoolVar(&f.allowWeird, "allow-weird-quotes", false, "trade even if a book touches 0 or 1")
	fs.Float64Var(&f.minEdge, "min-edge", 0, "minimum 1-2*price to trade")

	fs.StringVar(&f.start, "start", "", "window start, RFC3339")
	fs.BoolVar(&f.useSlugEpoch, "use-slug-epoch", false, "start at the epoch suffix of -slug")
	fs.BoolVar(&f.align, "align", false, "start at the next multiple of -period")
	fs.DurationVar(&f.duration, "duration", 0, "window length")
	fs.DurationVar(&f.period, "period", 0, "distance between window starts")
	fs.BoolVar(&f.repeat, "repeat", false, "run windows back to back")
	fs.IntVar(&f.maxWindows, "max-windows", 0, "stop after N windows in repeat mode (0 = never)")

	fs.StringVar(&f.policy, "policy", "", "single-leg policy: wait|cancel|hedge")
	fs.DurationVar(&f.grace, "grace", 0, "how long a single-leg fill may last before the policy runs")
	fs.DurationVar(&f.poll, "poll", 0, "fill polling interval without event feed")
	fs.DurationVar(&f.maxIdle, "max-idle", 0, "longest wait on a silent event feed before re-reading fills")
	fs.Float64Var(&f.minHedgeEdge, "min-hedge-edge", 0, "edge kept when hedging the missing leg")

	fs.BoolVar(&f.feed, "feed", false, "wake on the websocket user channel")
	fs.BoolVar(&f.merge, "merge", false, "merge complete sets on-chain after each window")
	fs.BoolVar(&f.approve, "approve", false, "set exchange approvals on-chain before trading")
	return f
}

// applyFlags overrides cfg with the flags set explicitly on the command line.
func applyFlags(fs *flag.FlagSet, f *cliFlags, cfg *config.Config) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "verbose":
			if f.verbose {
				cfg.Log.Level = "debug"
			}
		case "format":
			cfg.Log.Format = f.format
		case "dry-run":
			cfg.DryRun = f.dryRun
		case "price":
			cfg.Pair.Price = f.price
		case "usd":
			cfg.Pair.USD = f.usd
		case "shares":
			cfg.Pair.Shares = f.shares
		case "up":
			cfg.Pair.UpToken = f.up
		case "down":
			cfg.Pair.DownToken = f.down
		case "slug":
			cfg.Pair.Slug = f.slug
		case "post-only":
			v := f.postOnly
			cfg.Pair.PostOnly = &v
		case "allow-weird-quotes":
			cfg.Pair.AllowWeirdQuotes = f.allowWeird
		case "min-edge":
			cfg.Pair.MinEdge = f.minEdge
		case "start":
			cfg.Schedule.StartAt = f.start
		case "use-slug-epoch":
			cfg.Schedule.UseSlugEpoch = f.useSlugEpoch
		case "align":
			cfg.Schedule.Align = f.align
		case "duration":
			cfg.Schedule.Duration = f.duration
		case "period":
			cfg.Schedule.Period = f.period
		case "repeat":
			cfg.Schedule.Repeat = f.repeat
		case "max-windows":
			cfg.Schedule.MaxWindows = f.maxWindows
		case "policy":
			cfg.Risk.Policy = strings.ToLower(f.policy)
		case "grace":
			cfg.Risk.Grace = f.grace
		case "poll":
			cfg.Risk.PollInterval = f.poll
		case "max-idle":
			cfg.Risk.MaxIdle = f.maxIdle
		case "min-hedge-edge":
			cfg.Risk.MinHedgeEdge = f.minHedgeEdge
		case "feed":
			cfg.Feed.Enabled = f.feed
		case "merge":
			cfg.Merge.Enabled = f.merge
		case "approve":
			cfg.Wallet.EnsureApprovals = f.approve
		}
	})
	if f.since <= 0 {
		err = fmt.Errorf("-since must be > 0: %w", domain.ErrConfiguration)
	}
	return err
}

// buildRunConfig maps a validated config onto the runner's configuration.
func buildRunConfig(cfg *config.Config) (pair.RunConfig, error) {
	policy, err := domain.ParsePolicy(cfg.Risk.Policy)
	if err != nil {
		return pair.RunConfig{}, err
	}
	start, err := cfg.StartAt()
	if err != nil {
		return pair.RunConfig{}, err
	}

	return pair.RunConfig{
		Pair: pair.Config{
			Price:            cfg.Pair.Price,
			BudgetUSD:        cfg.Pair.USD,
			Shares:           cfg.Pair.Shares,
			PostOnly:         cfg.PostOnly(),
			AllowWeirdQuotes: cfg.Pair.AllowWeirdQuotes,
			MinEdge:          cfg.Pair.MinEdge,
			Duration:         cfg.Schedule.Duration,
			Policy:           policy,
			Grace:            cfg.Risk.Grace,
			PollInterval:     cfg.Risk.PollInterval,
			MaxIdle:          cfg.Risk.MaxIdle,
			MinHedgeEdge:     cfg.Risk.MinHedgeEdge,
			CloseTimeout:     cfg.Risk.CloseTimeout,
		},
		Schedule: schedule.Options{
			StartAt:       start,
			MarketSlug:    cfg.Pair.Slug,
			UseIdentifier: cfg.Schedule.UseSlugEpoch,
			AlignPeriod:   cfg.Schedule.Align,
			Period:        cfg.Schedule.Period,
		},
		Repeat:     cfg.Schedule.Repeat,
		MaxWindows: cfg.Schedule.MaxWindows,
		Market: domain.Market{
			Slug: cfg.Pair.Slug,
			Up:   domain.TokenMeta{TokenID: cfg.Pair.UpToken},
			Down: domain.TokenMeta{TokenID: cfg.Pair.DownToken},
		},
		Merge:          cfg.Merge.Enabled,
		MergeMinShares: cfg.Merge.MinShares,
	}, nil
}

// setupLogger installs the default slog logger. With log.file set the output
// also goes to a size-rotated file. The returned func flushes and closes it.
func setupLogger(cfg config.LogConfig) func() {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, lj)
		closeFn = func() { lj.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn
}
