package tagger

// HeaderSource exposes header values by name. Absent headers read as "".
type HeaderSource interface {
	Header(name string) string
}

// MatchValue reports whether the rule's pattern occurs anywhere in value.
func (r Rule) MatchValue(value string) bool {
	return r.Pattern.MatchString(value)
}

// Matches reports whether any of the rule's fields matches, returning the
// first matching field name.
func (r Rule) Matches(h HeaderSource) (string, bool) {
	for _, field := range r.Fields {
		if r.MatchValue(h.Header(field)) {
			return field, true
		}
	}
	return "", false
}

// Collect walks rules in order and appends the directives of every rule that
// matches. A rule contributes its directives once even when several of its
// fields match.
func Collect(h HeaderSource, rules []Rule) []Directive {
	var out []Directive
	for _, rule := range rules {
		if _, ok := rule.Matches(h); ok {
			out = append(out, rule.Directives...)
		}
	}
	return out
}
