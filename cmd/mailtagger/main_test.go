package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshsymonds/mailtagger/internal/config"
	"github.com/joshsymonds/mailtagger/internal/index"
	"github.com/joshsymonds/mailtagger/internal/mailstore"
	"github.com/joshsymonds/mailtagger/internal/tagger"
)

func TestParseRetagFlags(t *testing.T) {
	cfg, err := parseRetagFlags([]string{"-dry-run", "-json-output", "tag:unsorted"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.dryRun || !cfg.jsonOutput || cfg.query != "tag:unsorted" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := parseRetagFlags([]string{"tag:a", "tag:b"}); err == nil || !strings.Contains(err.Error(), "too many arguments") {
		t.Fatalf("expected too many arguments, got %v", err)
	}
}

// setupWorkspace writes a config, a filters file and a populated index.
func setupWorkspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.db")
	filtersPath := filepath.Join(dir, "filters.yml")
	configPath := filepath.Join(dir, "config.toml")

	filters := "- Fields: From\n  Pattern: \"@ci\\\\.example\\\\.org\"\n  Tags: +ci -inbox\n"
	if err := os.WriteFile(filtersPath, []byte(filters), 0o600); err != nil {
		t.Fatalf("write filters: %v", err)
	}
	conf := "[filters]\npath = \"" + filtersPath + "\"\n\n[index]\npath = \"" + indexPath + "\"\n\n[logging]\nlevel = \"error\"\n"
	if err := os.WriteFile(configPath, []byte(conf), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx := context.Background()
	idx, err := index.Open(ctx, indexPath, index.Options{})
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	for _, m := range []mailstore.Message{
		mailstore.NewMessage("build@ci", map[string]string{"From": "jenkins@ci.example.org"}, []string{"new", "inbox"}),
		mailstore.NewMessage("hello@friend", map[string]string{"From": "bob@example.com"}, []string{"new", "inbox"}),
	} {
		if _, err := idx.Put(ctx, m, "/mail/"+string(m.ID)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	return configPath, indexPath
}

func TestRunRetagsIndex(t *testing.T) {
	configPath, indexPath := setupWorkspace(t)

	var out bytes.Buffer
	if err := run(retagConfig{configPath: configPath}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); got != "\nsuccessfully retagged 2 new messages\n" {
		t.Fatalf("output = %q", got)
	}

	ctx := context.Background()
	idx, err := index.Open(ctx, indexPath, index.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	msg, err := idx.Get(ctx, "build@ci")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.Join(msg.Tags, " ") != "ci" {
		t.Fatalf("tags = %v, want [ci]", msg.Tags)
	}

	out.Reset()
	if err := run(retagConfig{configPath: configPath}, &out); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if out.String() != "no new messages found\n" {
		t.Fatalf("second output = %q", out.String())
	}
}

func TestRunDryRunJSON(t *testing.T) {
	configPath, indexPath := setupWorkspace(t)

	var out bytes.Buffer
	if err := run(retagConfig{configPath: configPath, dryRun: true, jsonOutput: true}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum map[string]any
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if sum["total"] != float64(2) || sum["inbox"] != float64(1) || sum["dry_run"] != true {
		t.Fatalf("summary = %v", sum)
	}

	ctx := context.Background()
	idx, err := index.Open(ctx, indexPath, index.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ids, err := idx.Search(ctx, mailstore.Query{Raw: "tag:new"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("dry run must not change tags: ids=%v err=%v", ids, err)
	}
}

func TestRunRejectsInvalidFilters(t *testing.T) {
	configPath, _ := setupWorkspace(t)
	bad := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(bad, []byte("- Fields: From\n  Pattern: \"(\"\n  Tags: work\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	err := run(retagConfig{configPath: configPath, filtersPath: bad}, &out)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"invalid pattern", "must start with '+' or '-'"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
	if out.Len() != 0 {
		t.Fatalf("no summary expected, got %q", out.String())
	}
}

// brokenStore serves "a" and fails to load every other message.
type brokenStore struct{}

func (brokenStore) Search(context.Context, mailstore.Query) ([]mailstore.MessageID, error) {
	return []mailstore.MessageID{"a", "b"}, nil
}

func (brokenStore) Get(_ context.Context, id mailstore.MessageID) (mailstore.Message, error) {
	if id != "a" {
		return mailstore.Message{}, errors.New("backend unavailable")
	}
	return mailstore.NewMessage(id, map[string]string{"Subject": "hi"}, []string{"new"}), nil
}

func (brokenStore) AddTag(context.Context, mailstore.MessageID, string) error    { return nil }
func (brokenStore) RemoveTag(context.Context, mailstore.MessageID, string) error { return nil }

func TestRetagWritesMetricsOnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "mailtagger.prom")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var out bytes.Buffer
	err := retag(context.Background(), cfg, retagConfig{}, brokenStore{}, []tagger.Filter(nil), logger, &out)
	if err == nil || !strings.Contains(err.Error(), "backend unavailable") {
		t.Fatalf("expected store failure, got %v", err)
	}
	data, readErr := os.ReadFile(cfg.Metrics.Textfile)
	if readErr != nil {
		t.Fatalf("metrics textfile missing after failed run: %v", readErr)
	}
	for _, want := range []string{"mailtagger_messages_processed_total 1", "mailtagger_inbox_messages 1"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile missing %q:\n%s", want, data)
		}
	}
	if out.Len() != 0 {
		t.Fatalf("no summary expected, got %q", out.String())
	}
}
