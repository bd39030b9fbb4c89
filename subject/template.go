package subject

import (
	"fmt"
	"strings"

	"github.com/c360/natswire/errors"
)

// Template maps named fields onto subject positions. A template is a
// dot-separated pattern whose tokens are literals, single-token
// placeholders "{name}", or multi-token placeholders "{>name}". The
// multi form binds one or more trailing tokens and must be followed by
// a literal or end the template; two adjacent placeholders after a
// multi would be indistinguishable.
//
//	t, _ := subject.ParseTemplate("orders.{region}.{>path}")
//	s, _ := t.Format(map[string]string{"region": "eu", "path": "a.b"})
//	// s == "orders.eu.a.b"
//	fields, _ := t.Bind("orders.eu.a.b")
//	// fields["region"] == "eu", fields["path"] == "a.b"
type Template struct {
	raw    string
	tokens []templateToken
}

type templateToken struct {
	lit   string // literal token; empty for placeholders
	name  string // placeholder field name
	multi bool
}

// ParseTemplate parses pattern into a Template.
func ParseTemplate(pattern string) (*Template, error) {
	if pattern == "" ||
		strings.HasPrefix(pattern, Separator) || strings.HasSuffix(pattern, Separator) {
		return nil, fmt.Errorf("%w: invalid template %q", errors.ErrBadSubject, pattern)
	}
	var tokens []templateToken
	seen := make(map[string]bool)
	prevMulti := false
	for _, raw := range strings.Split(pattern, Separator) {
		var tok templateToken
		if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") && len(raw) > 2 {
			name := raw[1 : len(raw)-1]
			if strings.HasPrefix(name, MultiWildcard) {
				tok.multi = true
				name = name[1:]
			}
			if !ValidToken(name) || strings.ContainsAny(name, "{}*>") {
				return nil, fmt.Errorf("%w: invalid placeholder %q", errors.ErrBadSubject, raw)
			}
			if seen[name] {
				return nil, fmt.Errorf("%w: duplicate field %q", errors.ErrBadSubject, name)
			}
			if prevMulti {
				return nil, fmt.Errorf(
					"%w: placeholder directly after multi placeholder %q", errors.ErrBadSubject, raw)
			}
			seen[name] = true
			tok.name = name
		} else {
			if !ValidToken(raw) || strings.ContainsAny(raw, "{}*>") {
				return nil, fmt.Errorf("%w: invalid template token %q", errors.ErrBadSubject, raw)
			}
			tok.lit = raw
		}
		prevMulti = tok.multi
		tokens = append(tokens, tok)
	}
	return &Template{raw: pattern, tokens: tokens}, nil
}

// String returns the original pattern.
func (t *Template) String() string { return t.raw }

// Names returns the field names in template order.
func (t *Template) Names() []string {
	var names []string
	for _, tok := range t.tokens {
		if tok.name != "" {
			names = append(names, tok.name)
		}
	}
	return names
}

// Filter renders the template as a subscription filter, single
// placeholders becoming "*" and a final multi placeholder ">". A multi
// placeholder anywhere else has no filter equivalent.
func (t *Template) Filter() (string, error) {
	var b strings.Builder
	for i, tok := range t.tokens {
		if i > 0 {
			b.WriteString(Separator)
		}
		switch {
		case tok.name == "":
			b.WriteString(tok.lit)
		case tok.multi:
			if i != len(t.tokens)-1 {
				return "", fmt.Errorf(
					"%w: multi placeholder %q before end has no filter form",
					errors.ErrBadSubject, tok.name)
			}
			b.WriteString(MultiWildcard)
		default:
			b.WriteString(SingleWildcard)
		}
	}
	return b.String(), nil
}

// Format renders the template with every placeholder replaced by its
// field value. Single fields must be one literal token; multi fields
// may span tokens but carry no wildcards.
func (t *Template) Format(fields map[string]string) (string, error) {
	var b strings.Builder
	for i, tok := range t.tokens {
		if i > 0 {
			b.WriteString(Separator)
		}
		if tok.name == "" {
			b.WriteString(tok.lit)
			continue
		}
		v, ok := fields[tok.name]
		if !ok {
			return "", fmt.Errorf("%w: missing field %q", errors.ErrBadSubject, tok.name)
		}
		if tok.multi {
			if err := ValidateLiteral(v); err != nil {
				return "", fmt.Errorf("%w: field %q: %q", errors.ErrBadSubject, tok.name, v)
			}
		} else if !ValidToken(v) || v == SingleWildcard || v == MultiWildcard {
			return "", fmt.Errorf("%w: field %q: %q", errors.ErrBadSubject, tok.name, v)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// Bind matches s against the template and extracts its fields. A multi
// placeholder captures greedily: the literal that follows it anchors at
// its last occurrence in the remaining subject.
func (t *Template) Bind(s string) (map[string]string, error) {
	if err := ValidateLiteral(s); err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	rest := s
	for i, tok := range t.tokens {
		last := i == len(t.tokens)-1
		switch {
		case last:
			if rest == "" {
				return nil, t.mismatch(s, "subject ended before %q", tok.describe())
			}
			switch {
			case tok.name == "":
				if rest != tok.lit {
					return nil, t.mismatch(s, "want %q, got %q", tok.lit, rest)
				}
			case !tok.multi && strings.Contains(rest, Separator):
				return nil, t.mismatch(s, "trailing tokens after field %q", tok.name)
			default:
				fields[tok.name] = rest
			}
			rest = ""
		case tok.multi:
			anchor := t.tokens[i+1].lit
			var capture string
			if i+1 == len(t.tokens)-1 {
				marker := Separator + anchor
				if !strings.HasSuffix(rest, marker) {
					return nil, t.mismatch(s, "no closing token %q after field %q", anchor, tok.name)
				}
				capture = strings.TrimSuffix(rest, marker)
				rest = anchor
			} else {
				marker := Separator + anchor + Separator
				idx := strings.LastIndex(rest, marker)
				if idx < 0 {
					return nil, t.mismatch(s, "no token %q after field %q", anchor, tok.name)
				}
				capture = rest[:idx]
				rest = rest[idx+1:]
			}
			if capture == "" {
				return nil, t.mismatch(s, "empty capture for field %q", tok.name)
			}
			fields[tok.name] = capture
		default:
			head, tail, found := strings.Cut(rest, Separator)
			if !found && head == "" {
				return nil, t.mismatch(s, "subject ended before %q", tok.describe())
			}
			if tok.name == "" {
				if head != tok.lit {
					return nil, t.mismatch(s, "want %q, got %q", tok.lit, head)
				}
			} else {
				fields[tok.name] = head
			}
			rest = tail
		}
	}
	return fields, nil
}

func (t *Template) mismatch(s, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %q against %q: %s", errors.ErrTemplateMismatch, s, t.raw, detail)
}

func (tok templateToken) describe() string {
	if tok.name != "" {
		return "{" + tok.name + "}"
	}
	return tok.lit
}
