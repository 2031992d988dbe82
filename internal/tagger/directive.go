package tagger

import "fmt"

// OpKind is the action a directive requests on a tag.
type OpKind int

const (
	OpAdd OpKind = iota
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Directive is a signed tag token such as "+inbox" or "-new".
type Directive struct {
	Kind OpKind
	Tag  string
}

// Add returns a directive adding tag.
func Add(tag string) Directive { return Directive{Kind: OpAdd, Tag: tag} }

// Remove returns a directive removing tag.
func Remove(tag string) Directive { return Directive{Kind: OpRemove, Tag: tag} }

// ParseDirective parses a signed token. The first character must be '+' or
// '-' and a tag name must follow.
func ParseDirective(token string) (Directive, error) {
	if token == "" {
		return Directive{}, fmt.Errorf("%w: empty token", ErrUnsignedDirective)
	}
	var kind OpKind
	switch token[0] {
	case '+':
		kind = OpAdd
	case '-':
		kind = OpRemove
	default:
		return Directive{}, fmt.Errorf("%w: %q", ErrUnsignedDirective, token)
	}
	if len(token) == 1 {
		return Directive{}, fmt.Errorf("%w: %q has no tag name", ErrUnsignedDirective, token)
	}
	return Directive{Kind: kind, Tag: token[1:]}, nil
}

func (d Directive) String() string {
	if d.Kind == OpRemove {
		return "-" + d.Tag
	}
	return "+" + d.Tag
}

// FormatDirectives renders directives the way they are written in a filter.
func FormatDirectives(ds []Directive) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
