package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/mailtagger/internal/config"
	"github.com/joshsymonds/mailtagger/internal/mailstore"
	"github.com/joshsymonds/mailtagger/internal/metrics"
	"github.com/joshsymonds/mailtagger/internal/runtime"
	"github.com/joshsymonds/mailtagger/internal/tagger"
)

type retagConfig struct {
	configPath  string
	filtersPath string
	backend     string
	logLevel    string
	query       string
	dryRun      bool
	jsonOutput  bool
	seedInbox   bool
	gmailAuth   bool
}

func main() {
	cfg, err := parseRetagFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		runtime.DefaultLogger().Error("mailtagger failed", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		runtime.DefaultLogger().Error("mailtagger failed", "error", err)
		os.Exit(1)
	}
}

func parseRetagFlags(args []string) (retagConfig, error) {
	fs := flag.NewFlagSet("mailtagger", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: mailtagger [flags] [query]\n\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file (default $MAILTAGGER_CONFIG or $XDG_CONFIG_HOME/mailtagger/config.toml)")
	filtersPath := fs.String("filters", "", "filters file, overrides filters.path")
	backend := fs.String("backend", "", "store backend: index, notmuch, gmail or imap")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	dryRun := fs.Bool("dry-run", false, "log only; skip modifications")
	jsonOutput := fs.Bool("json-output", false, "print the summary as JSON")
	seedInbox := fs.Bool("seed-inbox", false, "seed +inbox before the filters run")
	gmailAuth := fs.Bool("gmail-auth", false, "authorize Gmail access interactively and exit")
	if err := fs.Parse(args); err != nil {
		return retagConfig{}, err
	}
	if fs.NArg() > 1 {
		return retagConfig{}, fmt.Errorf("too many arguments: %q", fs.Args())
	}

	cfg := retagConfig{
		configPath:  *configPath,
		filtersPath: *filtersPath,
		backend:     *backend,
		logLevel:    *logLevel,
		dryRun:      *dryRun,
		jsonOutput:  *jsonOutput,
		seedInbox:   *seedInbox,
		gmailAuth:   *gmailAuth,
	}
	if fs.NArg() == 1 {
		cfg.query = fs.Arg(0)
	}
	return cfg, nil
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cli retagConfig) (config.Config, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cli.filtersPath != "" {
		cfg.Filters.Path = cli.filtersPath
	}
	if cli.backend != "" {
		cfg.Store.Backend = cli.backend
	}
	if cli.logLevel != "" {
		cfg.Logging.Level = cli.logLevel
	}
	if cli.query != "" {
		cfg.Retag.Query = cli.query
	}
	if cli.seedInbox {
		cfg.Retag.SeedInbox = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cli retagConfig, stdout io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(cfg.Logging)

	if cli.gmailAuth {
		return runtime.Authorize(ctx, cfg.Gmail.ConfigDir, runtime.ScopeModify, os.Stdin, os.Stderr)
	}

	filters, err := config.LoadFilters(cfg.Filters.Path)
	if err != nil {
		return err
	}

	store, err := runtime.OpenStore(ctx, cfg, cli.dryRun, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("close store", slog.Any("error", closeErr))
		}
	}()

	return retag(ctx, cfg, cli, store, filters, logger, stdout)
}

func retag(
	ctx context.Context,
	cfg config.Config,
	cli retagConfig,
	store mailstore.Store,
	filters []tagger.Filter,
	logger *slog.Logger,
	stdout io.Writer,
) error {
	recorder := metrics.NewRun()
	svc := tagger.NewService(store, logger, recorder)
	sum, err := svc.Run(ctx, filters, tagger.Options{
		Query:     cfg.Retag.Query,
		DryRun:    cli.dryRun,
		SeedInbox: cfg.Retag.SeedInbox,
		NewTag:    cfg.Retag.NewTag,
		InboxTag:  cfg.Retag.InboxTag,
	})
	if cfg.Metrics.Textfile != "" {
		if writeErr := recorder.WriteTextfile(cfg.Metrics.Textfile); writeErr != nil {
			logger.WarnContext(ctx, "metrics not written", slog.Any("error", writeErr))
		}
	}
	if err != nil {
		return fmt.Errorf("retag: %w", err)
	}

	if cli.jsonOutput {
		return sum.WriteJSON(stdout)
	}
	return sum.WriteHuman(stdout)
}
