package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshsymonds/mailtagger/internal/tagger"
)

// rawFilter keeps required keys as pointers so absent keys can be told apart
// from empty values.
type rawFilter struct {
	Name    string  `yaml:"Name"`
	Fields  *string `yaml:"Fields"`
	Pattern *string `yaml:"Pattern"`
	Tags    *string `yaml:"Tags"`
}

// LoadFilters reads the YAML filters file at path.
func LoadFilters(path string) ([]tagger.Filter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open filters: %w", err)
	}
	defer f.Close()
	filters, err := DecodeFilters(f)
	if err != nil {
		return nil, fmt.Errorf("load filters %s: %w", path, err)
	}
	return filters, nil
}

// DecodeFilters parses a YAML list of filters. Every filter must carry the
// Fields, Pattern and Tags keys; their values are checked later by
// tagger.Compile. An empty document is an empty list.
func DecodeFilters(r io.Reader) ([]tagger.Filter, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw []rawFilter
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var errs []error
	out := make([]tagger.Filter, 0, len(raw))
	for i, rf := range raw {
		var missing []string
		if rf.Fields == nil {
			missing = append(missing, "Fields")
		}
		if rf.Pattern == nil {
			missing = append(missing, "Pattern")
		}
		if rf.Tags == nil {
			missing = append(missing, "Tags")
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Errorf("filter #%d: missing key %s", i+1, strings.Join(missing, ", ")))
			continue
		}
		out = append(out, tagger.Filter{
			Name:    rf.Name,
			Fields:  *rf.Fields,
			Pattern: *rf.Pattern,
			Tags:    *rf.Tags,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
