package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshsymonds/mailtagger/internal/tagger"
)

func TestDecodeFilters(t *testing.T) {
	input := `
- Fields: From To
  Pattern: "@example\\.com"
  Tags: +work -inbox
- Name: lists
  Fields: List-Id
  Pattern: golang-nuts
  Tags: +lists
`
	filters, err := DecodeFilters(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []tagger.Filter{
		{Fields: "From To", Pattern: `@example\.com`, Tags: "+work -inbox"},
		{Name: "lists", Fields: "List-Id", Pattern: "golang-nuts", Tags: "+lists"},
	}
	if len(filters) != len(want) {
		t.Fatalf("got %d filters, want %d", len(filters), len(want))
	}
	for i := range want {
		if filters[i] != want[i] {
			t.Errorf("filter %d = %+v, want %+v", i, filters[i], want[i])
		}
	}
}

func TestDecodeFiltersMissingKeys(t *testing.T) {
	input := `
- Fields: From
  Tags: +a
- Pattern: x
`
	_, err := DecodeFilters(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"filter #1: missing key Pattern", "filter #2: missing key Fields, Tags"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not contain %q", msg, want)
		}
	}
}

func TestDecodeFiltersRejectsUnknownKey(t *testing.T) {
	input := "- Fields: From\n  Pattern: x\n  Tags: +a\n  Tag: +b\n"
	if _, err := DecodeFilters(strings.NewReader(input)); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestDecodeFiltersMalformed(t *testing.T) {
	if _, err := DecodeFilters(strings.NewReader("Fields: [unclosed")); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestDecodeFiltersEmpty(t *testing.T) {
	filters, err := DecodeFilters(strings.NewReader(""))
	if err != nil || len(filters) != 0 {
		t.Fatalf("empty document: filters=%v err=%v", filters, err)
	}
}

func TestLoadFiltersMissingFile(t *testing.T) {
	_, err := LoadFilters(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
