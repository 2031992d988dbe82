package tagger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
)

// LintReport captures filter findings for CI enforcement.
type LintReport struct {
	Query     string     `json:"query"`
	Total     int        `json:"total"`
	Warnings  []Warning  `json:"warnings"`
	DeadRules []string   `json:"dead_rules"`
	Conflicts []Conflict `json:"conflicts"`
}

// Conflict records rules that set opposite signs for the same tag on the
// same message. Only the later rule takes effect.
type Conflict struct {
	Tag      string   `json:"tag"`
	Rules    []string `json:"rules"`
	Messages int      `json:"messages"`
}

// DefaultLintQuery replays filters over every message.
const DefaultLintQuery = "*"

// LintOptions controls a lint run.
type LintOptions struct {
	// Query selects the messages to replay against, DefaultLintQuery if empty.
	Query    string
	InboxTag string
}

// Lint validates filters and replays them read-only against the messages
// matched by opts.Query.
func (s *Service) Lint(ctx context.Context, filters []Filter, opts LintOptions) (LintReport, error) {
	query := opts.Query
	if query == "" {
		query = DefaultLintQuery
	}
	rules, warnings, err := CompileFor(filters, opts.InboxTag)
	if err != nil {
		return LintReport{}, fmt.Errorf("validate filters: %w", err)
	}
	ids, err := s.Store.Search(ctx, mailstore.Query{Raw: query})
	if err != nil {
		return LintReport{}, fmt.Errorf("search %q: %w", query, err)
	}
	s.Logger.InfoContext(ctx, "linting filters",
		slog.String("query", query),
		slog.Int("rules", len(rules)),
		slog.Int("count", len(ids)),
	)

	hits := make(map[int]int, len(rules))
	conflicts := map[string]*Conflict{}
	for _, id := range ids {
		msg, getErr := s.Store.Get(ctx, id)
		if getErr != nil {
			return LintReport{}, fmt.Errorf("get message %s: %w", id, getErr)
		}
		var matched []Rule
		for _, rule := range rules {
			if _, ok := rule.Matches(msg); ok {
				hits[rule.Index]++
				matched = append(matched, rule)
			}
		}
		for _, found := range findConflicts(matched) {
			key := fmt.Sprintf("%s|%d|%d", found.tag, found.earlier.Index, found.later.Index)
			if existing, ok := conflicts[key]; ok {
				existing.Messages++
				continue
			}
			conflicts[key] = &Conflict{
				Tag:      found.tag,
				Rules:    []string{found.earlier.Name, found.later.Name},
				Messages: 1,
			}
		}
	}

	rep := LintReport{Query: query, Total: len(ids), Warnings: warnings}
	for _, rule := range rules {
		if hits[rule.Index] == 0 {
			rep.DeadRules = append(rep.DeadRules, rule.Name)
		}
	}
	for _, cf := range conflicts {
		rep.Conflicts = append(rep.Conflicts, *cf)
	}
	sort.Slice(rep.Conflicts, func(i, j int) bool {
		a, b := rep.Conflicts[i], rep.Conflicts[j]
		if a.Tag == b.Tag {
			return strings.Join(a.Rules, "|") < strings.Join(b.Rules, "|")
		}
		return a.Tag < b.Tag
	})
	return rep, nil
}

type ruleConflict struct {
	tag     string
	earlier Rule
	later   Rule
}

// findConflicts walks matched rules in order and reports every tag whose sign
// is flipped by a later rule.
func findConflicts(matched []Rule) []ruleConflict {
	type setter struct {
		rule Rule
		kind OpKind
	}
	last := map[string]setter{}
	var out []ruleConflict
	for _, rule := range matched {
		for _, d := range rule.Directives {
			prev, ok := last[d.Tag]
			if ok && prev.kind != d.Kind && prev.rule.Index != rule.Index {
				out = append(out, ruleConflict{tag: d.Tag, earlier: prev.rule, later: rule})
			}
			last[d.Tag] = setter{rule: rule, kind: d.Kind}
		}
	}
	return out
}

// ShouldFail reports whether any of the requested conditions are present.
func (lr LintReport) ShouldFail(failOn []string) bool {
	flags := map[string]bool{
		"warning":  len(lr.Warnings) > 0,
		"dead":     len(lr.DeadRules) > 0,
		"conflict": len(lr.Conflicts) > 0,
	}
	for _, cond := range failOn {
		if flags[cond] {
			return true
		}
	}
	return false
}

// HumanSummary renders a concise CLI summary.
func (lr LintReport) HumanSummary() string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "mailtagger lint: %q (%d messages checked)\n", lr.Query, lr.Total)
	if len(lr.Warnings) == 0 && len(lr.DeadRules) == 0 && len(lr.Conflicts) == 0 {
		builder.WriteString("no findings\n")
		return builder.String()
	}
	if len(lr.Warnings) > 0 {
		builder.WriteString("warnings:\n")
		for _, w := range lr.Warnings {
			fmt.Fprintf(builder, "  %s\n", w)
		}
	}
	if len(lr.DeadRules) > 0 {
		builder.WriteString("dead rules:\n")
		for _, name := range lr.DeadRules {
			fmt.Fprintf(builder, "  %s\n", name)
		}
	}
	if len(lr.Conflicts) > 0 {
		builder.WriteString("conflicts:\n")
		for _, cf := range lr.Conflicts {
			fmt.Fprintf(builder, "  %s: %s (%d messages)\n", cf.Tag, strings.Join(cf.Rules, " overridden by "), cf.Messages)
		}
	}
	return builder.String()
}

// ParseFailOn splits a comma separated list into canonical tokens.
func ParseFailOn(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
