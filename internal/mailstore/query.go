package mailstore

import (
	"errors"
	"fmt"
	"strings"
)

// TermKind selects what a search term matches against.
type TermKind int

const (
	TermAll TermKind = iota
	TermTag
	TermID
	TermFrom
	TermTo
	TermSubject
)

var termPrefixes = []struct {
	prefix string
	kind   TermKind
}{
	{"tag:", TermTag},
	{"id:", TermID},
	{"from:", TermFrom},
	{"to:", TermTo},
	{"subject:", TermSubject},
}

// Header returns the header name a term kind searches, or "" for non-header terms.
func (k TermKind) Header() string {
	switch k {
	case TermFrom:
		return "From"
	case TermTo:
		return "To"
	case TermSubject:
		return "Subject"
	default:
		return ""
	}
}

func (k TermKind) String() string {
	switch k {
	case TermAll:
		return "*"
	case TermTag:
		return "tag"
	case TermID:
		return "id"
	case TermFrom:
		return "from"
	case TermTo:
		return "to"
	case TermSubject:
		return "subject"
	default:
		return fmt.Sprintf("term(%d)", int(k))
	}
}

// Term is one predicate of a search expression. All terms of a query must hold.
type Term struct {
	Kind    TermKind
	Value   string
	Negated bool
}

// ErrEmptyQuery is returned for a search expression without terms.
var ErrEmptyQuery = errors.New("empty search expression")

// ParseQuery splits a notmuch-style search expression into terms.
//
// Terms are separated by whitespace and implicitly joined with AND; the
// keyword "and" is accepted and ignored. "not" or a leading "-" negates the
// following term. Values may be double quoted to include spaces, e.g.
// subject:"weekly report". Supported terms are tag:, id:, from:, to:,
// subject: and the match-all term "*".
func ParseQuery(raw string) ([]Term, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return nil, err
	}
	terms := make([]Term, 0, len(tokens))
	negate := false
	for _, tok := range tokens {
		if !tok.quoted {
			switch strings.ToLower(tok.text) {
			case "and":
				continue
			case "not":
				negate = !negate
				continue
			case "or":
				return nil, fmt.Errorf("unsupported operator %q in %q", tok.text, raw)
			}
		}
		term, err := parseTerm(tok.text)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}
		if negate {
			term.Negated = !term.Negated
			negate = false
		}
		terms = append(terms, term)
	}
	if negate {
		return nil, fmt.Errorf("dangling negation in %q", raw)
	}
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	return terms, nil
}

func parseTerm(text string) (Term, error) {
	var term Term
	if strings.HasPrefix(text, "-") {
		term.Negated = true
		text = text[1:]
	}
	if text == "*" {
		term.Kind = TermAll
		return term, nil
	}
	lower := strings.ToLower(text)
	for _, p := range termPrefixes {
		if !strings.HasPrefix(lower, p.prefix) {
			continue
		}
		value := strings.Trim(text[len(p.prefix):], `"`)
		if value == "" {
			return Term{}, fmt.Errorf("term %q has no value", text)
		}
		term.Kind = p.kind
		term.Value = value
		return term, nil
	}
	return Term{}, fmt.Errorf("unsupported search term %q", text)
}

type queryToken struct {
	text   string
	quoted bool
}

func tokenize(raw string) ([]queryToken, error) {
	var (
		tokens  []queryToken
		current strings.Builder
		inQuote bool
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, queryToken{text: current.String(), quoted: quoted})
		}
		current.Reset()
		quoted = false
	}
	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
			current.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", raw)
	}
	flush()
	return tokens, nil
}

// String renders terms back into a canonical search expression.
func String(terms []Term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		var b strings.Builder
		if t.Negated {
			b.WriteByte('-')
		}
		if t.Kind == TermAll {
			b.WriteByte('*')
		} else {
			b.WriteString(t.Kind.String())
			b.WriteByte(':')
			if strings.ContainsAny(t.Value, " \t") {
				b.WriteString(`"` + t.Value + `"`)
			} else {
				b.WriteString(t.Value)
			}
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " ")
}

// Match evaluates terms against a message snapshot. Header terms match
// case-insensitive substrings, the same way the stores search.
func Match(terms []Term, m Message) bool {
	for _, t := range terms {
		if matchTerm(t, m) == t.Negated {
			return false
		}
	}
	return true
}

func matchTerm(t Term, m Message) bool {
	switch t.Kind {
	case TermAll:
		return true
	case TermTag:
		return m.HasTag(t.Value)
	case TermID:
		return string(m.ID) == t.Value
	default:
		header := strings.ToLower(m.Header(t.Kind.Header()))
		return strings.Contains(header, strings.ToLower(t.Value))
	}
}
