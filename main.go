// Command syngen converts syndication feeds into mbox-format mailboxes. It is
// meant to run from cron: a default invocation processes every subscribed
// feed, and -cleanup prunes cache files for dropped subscriptions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jerobins/syngen/internal/config"
	"github.com/jerobins/syngen/internal/feed"
	"github.com/jerobins/syngen/internal/processor"
	"github.com/jerobins/syngen/internal/subscription"
)

func main() {
	configPath := flag.String("config", "syngen.toml", "path to configuration file")
	cleanup := flag.Bool("cleanup", false, "remove cache files for unsubscribed feeds and exit")
	dryRun := flag.Bool("dry-run", false, "process feeds without writing anything to disk")
	flag.Parse()

	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load configuration", "path", *configPath, "error", err)
		fmt.Fprintln(os.Stderr, "Sorry, please verify configuration options and retry")
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := run(cfg, logger, *cleanup); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, cleanup bool) error {
	if err := cfg.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap storage: %w", err)
	}

	timeout, err := cfg.GetFetchTimeout()
	if err != nil {
		return err
	}

	fetcher := feed.NewHTTPFetcher(timeout)
	var source subscription.Source
	if cfg.FeedMode == config.ModeRemote {
		fetcher.SetBasicAuth(cfg.Remote.Username, cfg.Remote.Password)
		source = subscription.RemoteSource{
			ListURL:  cfg.Remote.ListURL,
			ItemURL:  cfg.Remote.ItemURL,
			Username: cfg.Remote.Username,
			Password: cfg.Remote.Password,
		}
	} else {
		source = subscription.FileSource{Path: cfg.FeedFile}
	}

	proc := processor.New(processor.Options{
		MailDir:         cfg.MailDir,
		CacheDir:        cfg.CacheDir(),
		StateDir:        cfg.StateDir(),
		DryRun:          cfg.DryRun,
		MaxCacheEntries: cfg.MaxCacheEntries,
		MinCacheEntries: cfg.MinCacheEntries,
		Concurrency:     cfg.Concurrency,
	}, fetcher, source, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cleanup {
		n, err := proc.Cleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("syngen: removed %d cache files\n", n)
		return nil
	}

	summary, err := proc.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("run complete",
		"processed", summary.Processed,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"delivered", summary.Delivered,
		"duplicates", summary.Duplicates,
	)

	if err := cfg.TouchRunFile(); err != nil {
		logger.Warn("update lastrun marker", "error", err)
	}
	return nil
}
