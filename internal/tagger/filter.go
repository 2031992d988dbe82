package tagger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel causes carried by *ConfigError.
var (
	ErrNoFields          = errors.New("must provide at least one field to match")
	ErrNoDirectives      = errors.New("must provide at least one tag directive")
	ErrUnsignedDirective = errors.New("tag directive must start with '+' or '-'")
	ErrBadPattern        = errors.New("invalid pattern")
)

// Filter is a rule as written in the filters file.
type Filter struct {
	Name    string
	Fields  string
	Pattern string
	Tags    string
}

// Label names the filter for logs and reports.
func (f Filter) Label(index int) string {
	if name := strings.TrimSpace(f.Name); name != "" {
		return name
	}
	return fmt.Sprintf("filter #%d", index+1)
}

// Rule is a validated, compiled Filter.
type Rule struct {
	// Index is the filter's position in the filters file and identifies the
	// rule; Name is for display only and may repeat.
	Index      int
	Name       string
	Fields     []string
	Pattern    *regexp.Regexp
	Directives []Directive
}

// ConfigError describes a filter that cannot be used. It unwraps to one of
// the sentinel errors above.
type ConfigError struct {
	Index  int
	Filter string
	Text   string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v (in %q)", e.Filter, e.Err, e.Text)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Warning flags a filter that loads fine but has no observable effect.
type Warning struct {
	Index   int
	Filter  string
	Message string
}

func (w Warning) String() string {
	return w.Filter + ": " + w.Message
}

// Compile validates filters against the default inbox tag. See CompileFor.
func Compile(filters []Filter) ([]Rule, []Warning, error) {
	return CompileFor(filters, DefaultInboxTag)
}

// CompileFor validates filters and compiles them into rules, preserving
// order. A filter whose only directive is "+<inboxTag>" is flagged with a
// warning. Every problem in every filter is reported; the returned error
// joins one *ConfigError per problem and no rules are returned in that case.
func CompileFor(filters []Filter, inboxTag string) ([]Rule, []Warning, error) {
	if inboxTag == "" {
		inboxTag = DefaultInboxTag
	}
	var (
		rules    = make([]Rule, 0, len(filters))
		warnings []Warning
		errs     []error
	)
	for i, f := range filters {
		label := f.Label(i)
		fail := func(text string, err error) {
			errs = append(errs, &ConfigError{Index: i, Filter: label, Text: text, Err: err})
		}

		fields := strings.Fields(f.Fields)
		if len(fields) == 0 {
			fail(f.Fields, ErrNoFields)
		}

		tokens := strings.Fields(f.Tags)
		if len(tokens) == 0 {
			fail(f.Tags, ErrNoDirectives)
		}
		directives := make([]Directive, 0, len(tokens))
		for _, tok := range tokens {
			d, err := ParseDirective(tok)
			if err != nil {
				fail(f.Tags, err)
				continue
			}
			directives = append(directives, d)
		}

		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			fail(f.Pattern, fmt.Errorf("%w: %w", ErrBadPattern, err))
		}

		if len(tokens) > 0 && onlyInbox(directives, len(tokens), inboxTag) {
			warnings = append(warnings, Warning{
				Index:   i,
				Filter:  label,
				Message: fmt.Sprintf("the following tags list is a no-op: %q", f.Tags),
			})
		}

		rules = append(rules, Rule{Index: i, Name: label, Fields: fields, Pattern: re, Directives: directives})
	}
	if len(errs) > 0 {
		return nil, warnings, errors.Join(errs...)
	}
	return rules, warnings, nil
}

// onlyInbox reports whether every token parsed to "+<inboxTag>".
func onlyInbox(ds []Directive, tokens int, inboxTag string) bool {
	if len(ds) != tokens {
		return false
	}
	for _, d := range ds {
		if d != Add(inboxTag) {
			return false
		}
	}
	return true
}
