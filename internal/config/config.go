// Package config loads the mailtagger application config and filters file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPath overrides the default config file location.
const EnvPath = "MAILTAGGER_CONFIG"

// Store backends.
const (
	BackendIndex   = "index"
	BackendGmail   = "gmail"
	BackendIMAP    = "imap"
	BackendNotmuch = "notmuch"
)

// Config is the application configuration. Every section is optional.
type Config struct {
	Filters FiltersConfig `toml:"filters"`
	Retag   RetagConfig   `toml:"retag"`
	Store   StoreConfig   `toml:"store"`
	Index   IndexConfig   `toml:"index"`
	Gmail   GmailConfig   `toml:"gmail"`
	IMAP    IMAPConfig    `toml:"imap"`
	Notmuch NotmuchConfig `toml:"notmuch"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

type FiltersConfig struct {
	Path string `toml:"path"`
}

type RetagConfig struct {
	Query     string `toml:"query"`
	SeedInbox bool   `toml:"seed_inbox"`
	NewTag    string `toml:"new_tag"`
	InboxTag  string `toml:"inbox_tag"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
}

// IndexConfig configures the local SQLite tag index and the Maildir it indexes.
type IndexConfig struct {
	Path    string   `toml:"path"`
	Maildir string   `toml:"maildir"`
	NewTags []string `toml:"new_tags"`
}

type GmailConfig struct {
	ConfigDir string `toml:"config_dir"`
	RPS       int    `toml:"rps"`
}

// IMAPConfig configures the IMAP backend. Password may be left empty and
// supplied through MAILTAGGER_IMAP_PASSWORD.
type IMAPConfig struct {
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Mailbox  string `toml:"mailbox"`
	TLS      bool   `toml:"tls"`
	RPS      int    `toml:"rps"`
}

// NotmuchConfig configures the notmuch backend. An empty Config leaves
// notmuch to find its own configuration.
type NotmuchConfig struct {
	Binary string `toml:"binary"`
	Config string `toml:"config"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig enables the node_exporter textfile when Textfile is set.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	home, _ := os.UserHomeDir()
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(home, ".local", "share")
	}
	return Config{
		Filters: FiltersConfig{Path: filepath.Join(home, ".notmuch-tagger.yml")},
		Retag:   RetagConfig{Query: "tag:new", NewTag: "new", InboxTag: "inbox"},
		Store:   StoreConfig{Backend: BackendIndex},
		Index: IndexConfig{
			Path:    filepath.Join(dataDir, "mailtagger", "index.db"),
			Maildir: filepath.Join(home, "Maildir"),
			NewTags: []string{"new", "inbox", "unread"},
		},
		Gmail:   GmailConfig{ConfigDir: filepath.Join(home, ".gmailctl"), RPS: 4},
		IMAP:    IMAPConfig{Mailbox: "INBOX", TLS: true, RPS: 4},
		Notmuch: NotmuchConfig{Binary: "notmuch"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the config location: $MAILTAGGER_CONFIG, else
// $XDG_CONFIG_HOME/mailtagger/config.toml.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "mailtagger", "config.toml")
}

// Load reads path over the defaults. An empty path means DefaultPath; a
// missing file yields the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if pw := os.Getenv("MAILTAGGER_IMAP_PASSWORD"); pw != "" && cfg.IMAP.Password == "" {
		cfg.IMAP.Password = pw
	}
	cfg.Filters.Path = expandHome(cfg.Filters.Path)
	cfg.Index.Path = expandHome(cfg.Index.Path)
	cfg.Index.Maildir = expandHome(cfg.Index.Maildir)
	cfg.Gmail.ConfigDir = expandHome(cfg.Gmail.ConfigDir)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)
	cfg.Notmuch.Config = expandHome(cfg.Notmuch.Config)
	return cfg, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
