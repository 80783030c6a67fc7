package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/pairbot/config"
	"github.com/alejandrodnm/pairbot/internal/adapters/notify"
	"github.com/alejandrodnm/pairbot/internal/adapters/onchain"
	"github.com/alejandrodnm/pairbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/pairbot/internal/adapters/storage"
	"github.com/alejandrodnm/pairbot/internal/application/engine/paper"
	"github.com/alejandrodnm/pairbot/internal/application/engine/pair"
	"github.com/alejandrodnm/pairbot/internal/domain"
)

func main() {
	fs := flag.NewFlagSet("pairbot", flag.ExitOnError)
	f := registerFlags(fs)
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fatal(fs, "failed to load config", err)
	}
	if err := applyFlags(fs, f, cfg); err != nil {
		fatal(fs, "invalid flags", err)
	}

	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if f.report {
		if err := runReport(ctx, cfg, f.since, f.verbose); err != nil {
			fatal(fs, "report failed", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fatal(fs, "invalid configuration", err)
	}
	runCfg, err := buildRunConfig(cfg)
	if err != nil {
		fatal(fs, "invalid configuration", err)
	}

	slog.Info("pairbot starting",
		"config", f.configPath,
		"dry_run", cfg.DryRun,
		"price", cfg.Pair.Price,
		"policy", cfg.Risk.Policy,
		"repeat", cfg.Schedule.Repeat,
		"feed", cfg.Feed.Enabled,
		"merge", cfg.Merge.Enabled,
	)

	deps, cleanup, err := wire(ctx, cfg)
	if err != nil {
		fatal(fs, "startup failed", err)
	}
	defer cleanup()

	outs, err := pair.NewRunner(deps, runCfg).Run(ctx)
	if err != nil {
		cleanup()
		fatal(fs, "run aborted", err)
	}

	full := 0
	for _, o := range outs {
		if o.Final == domain.StateFullyFilled {
			full++
		}
	}
	slog.Info("pairbot stopped cleanly", "windows", len(outs), "fully_filled", full)
}

// wire builds the adapters for a live or dry run. cleanup is idempotent.
func wire(ctx context.Context, cfg *config.Config) (pair.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	deps := pair.Deps{
		Resolver: client,
		Notifier: notify.NewConsole(cfg.Log.Level == "debug"),
	}

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		return deps, cleanup, fmt.Errorf("open journal %q: %w", cfg.Storage.DSN, err)
	}
	closers = append(closers, func() { journal.Close() })
	deps.Journal = journal

	if cfg.DryRun {
		deps.Exchange = paper.NewExchange(client)
		if cfg.Feed.Enabled || cfg.Merge.Enabled {
			slog.Warn("dry-run: event feed and merge are disabled")
		}
		return deps, cleanup, nil
	}

	auth, err := polymarket.NewAuthClient(client, polymarket.AuthConfig{
		PrivateKeyHex: cfg.Wallet.PrivateKey,
		Funder:        cfg.Wallet.Funder,
		SignatureType: cfg.Wallet.SignatureType,
		ChainID:       cfg.Wallet.ChainID,
	})
	if err != nil {
		return deps, cleanup, err
	}
	deps.Exchange = polymarket.NewTradingClient(auth)
	slog.Info("wallet", "signer", auth.Address(), "funder", auth.Funder(), "signature_type", cfg.Wallet.SignatureType)

	if cfg.Feed.Enabled {
		deps.Feed = polymarket.NewUserFeed(auth, cfg.Feed.URL)
	}

	if cfg.Wallet.RPCURL == "" {
		return deps, cleanup, nil
	}
	mc, err := onchain.NewMergeClient(cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey)
	if err != nil {
		return deps, cleanup, err
	}
	closers = append(closers, mc.Close)

	if bal, err := mc.CollateralBalance(ctx); err != nil {
		slog.Warn("could not read USDC.e balance", "err", err)
	} else {
		slog.Info("collateral", "address", mc.Address().Hex(), "usdc", fmt.Sprintf("%.2f", bal))
	}
	if cfg.Wallet.EnsureApprovals {
		if err := mc.EnsureApprovals(ctx); err != nil {
			return deps, cleanup, err
		}
	}
	if cfg.Merge.Enabled {
		if cfg.Wallet.SignatureType != polymarket.SignatureEOA {
			slog.Warn("merge disabled: positions are held by the proxy wallet, not the signer")
		} else {
			deps.Merger = mc
		}
	}
	return deps, cleanup, nil
}

func runReport(ctx context.Context, cfg *config.Config, since time.Duration, verbose bool) error {
	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer journal.Close()

	now := time.Now().UTC()
	outs, err := journal.ListWindows(ctx, now.Add(-since), now.Add(time.Minute))
	if err != nil {
		return err
	}
	return notify.NewConsole(verbose).PrintHistory(ctx, outs)
}

func fatal(fs *flag.FlagSet, msg string, err error) {
	slog.Error(msg, "err", err)
	if errors.Is(err, domain.ErrConfiguration) {
		fs.Usage()
	}
	os.Exit(1)
}
