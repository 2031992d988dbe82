package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/mailtagger/internal/config"
	"github.com/joshsymonds/mailtagger/internal/index"
	"github.com/joshsymonds/mailtagger/internal/runtime"
)

type indexConfig struct {
	configPath string
	indexPath  string
	logLevel   string
	maildir    string
	jsonOutput bool
}

func main() {
	cfg, err := parseIndexFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		runtime.DefaultLogger().Error("mailtagger-index failed", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		runtime.DefaultLogger().Error("mailtagger-index failed", "error", err)
		os.Exit(1)
	}
}

func parseIndexFlags(args []string) (indexConfig, error) {
	fs := flag.NewFlagSet("mailtagger-index", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: mailtagger-index [flags] [maildir]\n\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file (default $MAILTAGGER_CONFIG or $XDG_CONFIG_HOME/mailtagger/config.toml)")
	indexPath := fs.String("index", "", "index database, overrides index.path")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	jsonOutput := fs.Bool("json-output", false, "print the scan result as JSON")
	if err := fs.Parse(args); err != nil {
		return indexConfig{}, err
	}
	if fs.NArg() > 1 {
		return indexConfig{}, fmt.Errorf("too many arguments: %q", fs.Args())
	}
	cfg := indexConfig{
		configPath: *configPath,
		indexPath:  *indexPath,
		logLevel:   *logLevel,
		jsonOutput: *jsonOutput,
	}
	if fs.NArg() == 1 {
		cfg.maildir = fs.Arg(0)
	}
	return cfg, nil
}

func run(cli indexConfig, stdout io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}
	if cli.indexPath != "" {
		cfg.Index.Path = cli.indexPath
	}
	if cli.maildir != "" {
		cfg.Index.Maildir = cli.maildir
	}
	if cli.logLevel != "" {
		cfg.Logging.Level = cli.logLevel
	}
	// The index is written regardless of the retag backend.
	cfg.Store.Backend = config.BackendIndex
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := runtime.NewLogger(cfg.Logging)

	idx, err := index.Open(ctx, cfg.Index.Path, index.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer idx.Close()

	res, err := index.NewScanner(idx, cfg.Index.NewTags, logger).Scan(ctx, cfg.Index.Maildir)
	if err != nil {
		return err
	}

	if cli.jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "    ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return nil
	}
	if _, err := fmt.Fprintf(stdout, "indexed %d new messages (%d already indexed, %d unreadable)\n",
		res.Added, res.Skipped, res.Failed); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
