// Package subject validates NATS subjects and implements wildcard matching.
package subject

import (
	"fmt"
	"strings"

	"github.com/c360/natswire/errors"
)

const (
	// SingleWildcard matches exactly one token.
	SingleWildcard = "*"

	// MultiWildcard matches all remaining tokens. Only valid as the final
	// token of a subject.
	MultiWildcard = ">"

	// Separator delimits tokens.
	Separator = "."
)

// ValidToken reports whether tok is usable as a single subject token.
// Tokens must be non-empty and free of separators and whitespace.
func ValidToken(tok string) bool {
	return tok != "" && !strings.ContainsAny(tok, ". \t\n\r")
}

// Validate checks s against the subject grammar: dot-separated non-empty
// tokens with no whitespace, and the multi wildcard only in final position.
func Validate(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty subject", errors.ErrBadSubject)
	case strings.HasPrefix(s, Separator) || strings.HasSuffix(s, Separator):
		return fmt.Errorf("%w: separator at beginning or end: %q", errors.ErrBadSubject, s)
	case strings.HasPrefix(s, ">.") || strings.Contains(s, ".>."):
		return fmt.Errorf("%w: multi wildcard before end: %q", errors.ErrBadSubject, s)
	case strings.Contains(s, ".."):
		return fmt.Errorf("%w: empty token: %q", errors.ErrBadSubject, s)
	case strings.ContainsAny(s, " \t\n\r"):
		return fmt.Errorf("%w: whitespace in subject: %q", errors.ErrBadSubject, s)
	}
	return nil
}

// ValidateLiteral checks s as a publish subject, where wildcards carry no
// meaning and are rejected.
func ValidateLiteral(s string) error {
	if err := Validate(s); err != nil {
		return err
	}
	if HasWildcards(s) {
		return fmt.Errorf("%w: wildcard in publish subject: %q", errors.ErrBadSubject, s)
	}
	return nil
}

// HasWildcards reports whether any token of s is a wildcard. Subjects with
// wildcards can be subscribed to but not published to.
func HasWildcards(s string) bool {
	for rest := s; rest != ""; {
		var tok string
		tok, rest, _ = strings.Cut(rest, Separator)
		if tok == SingleWildcard || tok == MultiWildcard {
			return true
		}
	}
	return false
}

// Tokens splits s into its tokens. The caller is expected to have validated
// s first; an empty subject yields an empty slice.
func Tokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, Separator)
}

// Matches reports whether filter and s match, honoring wildcards on either
// side. A multi wildcard absorbs all remaining tokens of the other subject.
func Matches(filter, s string) bool {
	fRest, sRest := filter, s
	for {
		fTok, fNext, fOK := nextToken(fRest)
		sTok, sNext, sOK := nextToken(sRest)
		switch {
		case !fOK && !sOK:
			return true
		case fOK && sOK && (fTok == MultiWildcard || sTok == MultiWildcard):
			return true
		case !fOK || !sOK:
			return false
		case !tokenMatch(fTok, sTok):
			return false
		}
		fRest, sRest = fNext, sNext
	}
}

// Join appends tokens to base. Joining onto a subject that ends with the
// multi wildcard is rejected, as is any invalid token.
func Join(base string, tokens ...string) (string, error) {
	if err := Validate(base); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(base)
	for _, tok := range tokens {
		if strings.HasSuffix(b.String(), MultiWildcard) {
			return "", fmt.Errorf("%w: cannot join after multi wildcard", errors.ErrBadSubject)
		}
		if !ValidToken(tok) {
			return "", fmt.Errorf("%w: invalid token %q", errors.ErrBadSubject, tok)
		}
		b.WriteString(Separator)
		b.WriteString(tok)
	}
	return b.String(), nil
}

func nextToken(rest string) (tok, next string, ok bool) {
	if rest == "" {
		return "", "", false
	}
	tok, next, found := strings.Cut(rest, Separator)
	if !found {
		next = ""
	}
	return tok, next, true
}

func tokenMatch(a, b string) bool {
	return a == b || a == SingleWildcard || b == SingleWildcard
}
