// Package template implements Template Substitution (spec.md §4.5, C5):
// turning a calculated measure's `{member}` / `{Cube.member}` string
// template into a fragment.Fragment tree, splicing in each token's
// already-resolved fragment rather than concatenating strings.
package template

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
)

// Token is one parsed `{...}` reference, either a bare local field name or
// a "Cube.field" member reference.
type Token struct {
	Raw string // text between the braces, unparsed
}

// Tokenize scans s for `{...}` tokens, returning the literal text segments
// interleaved with tokens. It rejects nested, empty, and unmatched braces
// — spec.md §4.5 "detects cycles; validates syntax" covers the unmatched/
// nested/empty cases at this stage, before any dependency-graph work.
func Tokenize(s string) ([]string, []Token, error) {
	var (
		segments []string
		tokens   []Token
		buf      strings.Builder
		inToken  bool
		tokBuf   strings.Builder
	)

	for i, r := range s {
		switch {
		case r == '{' && !inToken:
			inToken = true
			segments = append(segments, buf.String())
			buf.Reset()
		case r == '{' && inToken:
			return nil, nil, errs.WrapError("template.Tokenize", fmt.Errorf("%w: nested '{' at offset %d", errs.ErrInvalidTemplate, i))
		case r == '}' && inToken:
			raw := tokBuf.String()
			if raw == "" {
				return nil, nil, errs.WrapError("template.Tokenize", fmt.Errorf("%w: empty token at offset %d", errs.ErrInvalidTemplate, i))
			}

			if !validIdentifierToken(raw) {
				return nil, nil, errs.WrapError("template.Tokenize", fmt.Errorf("%w: invalid token %q", errs.ErrInvalidTemplate, raw))
			}

			tokens = append(tokens, Token{Raw: raw})
			tokBuf.Reset()
			inToken = false
		case r == '}' && !inToken:
			return nil, nil, errs.WrapError("template.Tokenize", fmt.Errorf("%w: unmatched '}' at offset %d", errs.ErrInvalidTemplate, i))
		case inToken:
			tokBuf.WriteRune(r)
		default:
			buf.WriteRune(r)
		}
	}

	if inToken {
		return nil, nil, errs.WrapError("template.Tokenize", fmt.Errorf("%w: unmatched '{'", errs.ErrInvalidTemplate))
	}

	segments = append(segments, buf.String())

	return segments, tokens, nil
}

// validIdentifierToken accepts "field" or "Cube.field" where both parts
// are Go/SQL-style identifiers: a letter or underscore followed by
// letters, digits, or underscores.
func validIdentifierToken(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) > 2 {
		return false
	}

	for _, p := range parts {
		if !validIdentifier(p) {
			return false
		}
	}

	return true
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}

	return true
}

// Substitute tokenizes template and splices resolve(token.Raw)'s result in
// place of each token, preserving fragment structure (never falling back
// to string concatenation, so parameters stay bound correctly). resolve is
// called once per token occurrence, in left-to-right order.
func Substitute(tmpl string, resolve func(member string) (*fragment.Fragment, error)) (*fragment.Fragment, error) {
	segments, tokens, err := Tokenize(tmpl)
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return fragment.Lit(tmpl), nil
	}

	parts := make([]*fragment.Fragment, 0, len(segments)+len(tokens))

	for i, seg := range segments {
		if seg != "" {
			parts = append(parts, fragment.Lit(seg))
		}

		if i < len(tokens) {
			resolved, err := resolve(tokens[i].Raw)
			if err != nil {
				return nil, errs.WrapError("template.Substitute", err)
			}

			parts = append(parts, resolved)
		}
	}

	return fragment.Concat(parts...), nil
}
