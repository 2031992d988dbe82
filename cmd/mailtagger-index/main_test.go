package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRunIndexesMaildir(t *testing.T) {
	dir := t.TempDir()
	maildir := filepath.Join(dir, "Maildir")
	for _, sub := range []string{"cur", "new", "tmp"} {
		if err := os.MkdirAll(filepath.Join(maildir, sub), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	msg := "Message-ID: <a@example.com>\r\nFrom: alice@example.com\r\nSubject: hi\r\n\r\nbody\r\n"
	if err := os.WriteFile(filepath.Join(maildir, "new", "1.host"), []byte(msg), 0o600); err != nil {
		t.Fatalf("write message: %v", err)
	}
	t.Setenv("MAILTAGGER_CONFIG", filepath.Join(dir, "absent.toml"))

	cli := indexConfig{indexPath: filepath.Join(dir, "index.db"), maildir: maildir, logLevel: "error"}
	var out bytes.Buffer
	if err := run(cli, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); got != "indexed 1 new messages (0 already indexed, 0 unreadable)\n" {
		t.Fatalf("output = %q", got)
	}

	out.Reset()
	if err := run(cli, &out); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := out.String(); got != "indexed 0 new messages (1 already indexed, 0 unreadable)\n" {
		t.Fatalf("second output = %q", got)
	}
}

func TestParseIndexFlagsTooManyArgs(t *testing.T) {
	if _, err := parseIndexFlags([]string{"a", "b"}); err == nil {
		t.Fatal("expected error")
	}
}
