package template_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/template"
)

type fakeQuoter struct{}

func (fakeQuoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (fakeQuoter) Placeholder(idx int) string {
	return "$"
}
func (fakeQuoter) ReusesParams() bool { return true }

func TestTokenizeSimple(t *testing.T) {
	segs, toks, err := template.Tokenize("{revenue} / {count}")
	require.NoError(t, err)
	require.Equal(t, []string{"", " / ", ""}, segs)
	require.Equal(t, []template.Token{{Raw: "revenue"}, {Raw: "count"}}, toks)
}

func TestTokenizeRejectsNestedBrace(t *testing.T) {
	_, _, err := template.Tokenize("{a{b}}")
	require.ErrorIs(t, err, errs.ErrInvalidTemplate)
}

func TestTokenizeRejectsEmptyToken(t *testing.T) {
	_, _, err := template.Tokenize("{}")
	require.ErrorIs(t, err, errs.ErrInvalidTemplate)
}

func TestTokenizeRejectsUnmatchedBrace(t *testing.T) {
	_, _, err := template.Tokenize("{a")
	require.ErrorIs(t, err, errs.ErrInvalidTemplate)

	_, _, err = template.Tokenize("a}")
	require.ErrorIs(t, err, errs.ErrInvalidTemplate)
}

func TestTokenizeAcceptsCubeDotMember(t *testing.T) {
	_, toks, err := template.Tokenize("{Orders.total}")
	require.NoError(t, err)
	require.Equal(t, "Orders.total", toks[0].Raw)
}

func TestTokenizeRejectsTooManyDots(t *testing.T) {
	_, _, err := template.Tokenize("{A.B.C}")
	require.ErrorIs(t, err, errs.ErrInvalidTemplate)
}

func TestSubstituteSplicesFragmentsNotStrings(t *testing.T) {
	resolve := func(member string) (*fragment.Fragment, error) {
		switch member {
		case "revenue":
			return fragment.Prefix("SUM", fragment.Ident("amount")), nil
		case "count":
			return fragment.Prefix("COUNT", fragment.Ident("id")), nil
		}
		return nil, errors.New("unknown")
	}

	f, err := template.Substitute("{revenue} / {count}", resolve)
	require.NoError(t, err)

	sql, _ := fragment.Render(f, fakeQuoter{})
	require.Equal(t, `SUM("amount") / COUNT("id")`, sql)
}

func TestSubstituteNoTokensReturnsLiteral(t *testing.T) {
	f, err := template.Substitute("42", nil)
	require.NoError(t, err)

	sql, _ := fragment.Render(f, fakeQuoter{})
	require.Equal(t, "42", sql)
}

func TestSubstitutePropagatesResolveError(t *testing.T) {
	_, err := template.Substitute("{bad}", func(string) (*fragment.Fragment, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
}
