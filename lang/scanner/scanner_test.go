package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/laconic/lang/scanner"
	"github.com/mna/laconic/lang/token"
)

func scanAll(t *testing.T, src string) []scanner.TokenAndValue {
	t.Helper()
	var s scanner.Scanner
	var errs []string
	s.Init([]byte(src), func(pos token.Position, msg string) {
		errs = append(errs, msg)
	})
	var toks []scanner.TokenAndValue
	for {
		tv := s.Scan()
		toks = append(toks, tv)
		if tv.Token == token.EOF {
			break
		}
	}
	require.Empty(t, errs, "unexpected scan errors: %v", errs)
	return toks
}

func TestScanLiteralsAndOperators(t *testing.T) {
	toks := scanAll(t, `let x = 1 + 2 in x`)
	var kinds []token.Token
	for _, tv := range toks {
		kinds = append(kinds, tv.Token)
	}
	assert.Equal(t, []token.Token{
		token.LET, token.IDENT, token.EQ, token.NATURAL, token.PLUS,
		token.NATURAL, token.IN, token.IDENT, token.EOF,
	}, kinds)
}

func TestScanTextLiteralIsOneRawToken(t *testing.T) {
	toks := scanAll(t, `"hi ${x}!"`)
	require.Len(t, toks, 2) // TEXT, EOF
	assert.Equal(t, token.TEXT, toks[0].Token)
	assert.Equal(t, `hi ${x}!`, toks[0].Text)
}

func TestScanNestedInterpolationBraceDepth(t *testing.T) {
	toks := scanAll(t, `"a${ { b = 1 }.b }c"`)
	require.Len(t, toks, 2)
	assert.Equal(t, token.TEXT, toks[0].Token)
	assert.Equal(t, `a${ { b = 1 }.b }c`, toks[0].Text)
}

func TestScanOperatorSpellings(t *testing.T) {
	toks := scanAll(t, `/\ // ++ # === ? -> \ @`)
	var kinds []token.Token
	for _, tv := range toks {
		kinds = append(kinds, tv.Token)
	}
	assert.Equal(t, []token.Token{
		token.SLASHBACK, token.SLASHSLASH, token.PLUSPLUS, token.POUND,
		token.EQEQEQ, token.QUESTION, token.ARROW, token.LAMBDA, token.AT,
		token.EOF,
	}, kinds)
}

func TestScanIntegerRequiresExplicitSign(t *testing.T) {
	toks := scanAll(t, `+41 -41`)
	require.Len(t, toks, 3)
	assert.Equal(t, token.INTEGER, toks[0].Token)
	assert.Equal(t, token.INTEGER, toks[1].Token)
}
