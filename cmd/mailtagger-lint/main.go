package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/mailtagger/internal/config"
	"github.com/joshsymonds/mailtagger/internal/runtime"
	"github.com/joshsymonds/mailtagger/internal/tagger"
)

type lintConfig struct {
	configPath  string
	filtersPath string
	backend     string
	failOn      string
	logLevel    string
	query       string
	jsonOutput  bool
}

func main() {
	cfg, err := parseLintFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		runtime.DefaultLogger().Error("mailtagger-lint failed", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		runtime.DefaultLogger().Error("mailtagger-lint failed", "error", err)
		os.Exit(1)
	}
}

func parseLintFlags(args []string) (lintConfig, error) {
	fs := flag.NewFlagSet("mailtagger-lint", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: mailtagger-lint [flags] [query]\n\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file (default $MAILTAGGER_CONFIG or $XDG_CONFIG_HOME/mailtagger/config.toml)")
	filtersPath := fs.String("filters", "", "filters file, overrides filters.path")
	backend := fs.String("backend", "", "store backend: index, notmuch, gmail or imap")
	failOn := fs.String("fail-on", "conflict", "comma separated lint failures: warning, dead, conflict")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	jsonOutput := fs.Bool("json-output", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return lintConfig{}, err
	}
	if fs.NArg() > 1 {
		return lintConfig{}, fmt.Errorf("too many arguments: %q", fs.Args())
	}
	cfg := lintConfig{
		configPath:  *configPath,
		filtersPath: *filtersPath,
		backend:     *backend,
		failOn:      *failOn,
		logLevel:    *logLevel,
		jsonOutput:  *jsonOutput,
	}
	if fs.NArg() == 1 {
		cfg.query = fs.Arg(0)
	}
	return cfg, nil
}

func run(cli lintConfig, stdout io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := runtime.NewLogger(cfg.Logging)

	filters, err := config.LoadFilters(cfg.Filters.Path)
	if err != nil {
		return err
	}
	store, err := runtime.OpenStore(ctx, cfg, true, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("close store", slog.Any("error", closeErr))
		}
	}()

	rep, err := tagger.NewService(store, logger, nil).Lint(ctx, filters, tagger.LintOptions{
		Query:    cli.query,
		InboxTag: cfg.Retag.InboxTag,
	})
	if err != nil {
		return fmt.Errorf("run lint: %w", err)
	}

	if cli.jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "    ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	} else if _, err := io.WriteString(stdout, rep.HumanSummary()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if rep.ShouldFail(tagger.ParseFailOn(cli.failOn)) {
		return fmt.Errorf("lint failures matched: %s", cli.failOn)
	}
	return nil
}
