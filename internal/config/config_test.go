package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendIndex || cfg.Retag.Query != "tag:new" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[retag]
query = "tag:unprocessed"
seed_inbox = true

[store]
backend = "imap"

[imap]
addr = "imap.example.com:993"
username = "alice"

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retag.Query != "tag:unprocessed" || !cfg.Retag.SeedInbox {
		t.Fatalf("retag section not applied: %+v", cfg.Retag)
	}
	if cfg.Retag.NewTag != "new" {
		t.Fatalf("unset keys should keep defaults, got new_tag %q", cfg.Retag.NewTag)
	}
	if cfg.IMAP.Mailbox != "INBOX" || cfg.IMAP.Username != "alice" {
		t.Fatalf("imap section: %+v", cfg.IMAP)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "env.toml", "[metrics]\ntextfile = \"/tmp/mailtagger.prom\"\n")
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Metrics.Textfile != "/tmp/mailtagger.prom" {
		t.Fatalf("env config not read: %+v", cfg.Metrics)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[retag]\nquerry = \"tag:new\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "retag.querry") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateJoinsProblems(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "mbox"
	cfg.Retag.NewTag = "+new"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"store.backend", "retag.new_tag", "logging.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateNotmuchBackend(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendNotmuch
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default notmuch config should validate: %v", err)
	}

	cfg.Notmuch.Binary = " "
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "notmuch.binary") {
		t.Fatalf("expected notmuch.binary error, got %v", err)
	}
}

func TestValidateIMAPRequiresAddr(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendIMAP
	cfg.IMAP.Username = "alice"
	cfg.IMAP.Addr = "imap.example.com"

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "imap.addr") {
		t.Fatalf("expected imap.addr error, got %v", err)
	}
}
