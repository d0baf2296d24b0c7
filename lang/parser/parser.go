// Package parser implements the external `text -> Expr` collaborator
// spec.md §1 demands of the core: a recursive-descent, precedence-climbing
// parser over lang/scanner's token stream, producing an lang/ast.Expr tree.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/laconic/lang/ast"
	"github.com/mna/laconic/lang/scanner"
	"github.com/mna/laconic/lang/token"
)

// ParseError is returned for any syntax error encountered.
type ParseError struct {
	Pos token.Position
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Parse parses src (a complete program, e.g. one file's contents or a
// string supplied to EvaluateSource) into an Expr.
func Parse(src []byte) (e ast.Expr, err error) {
	p := &parser{}
	var firstErr *ParseError
	p.s.Init(src, func(pos token.Position, msg string) {
		if firstErr == nil {
			firstErr = &ParseError{Pos: pos, Msg: msg}
		}
	})
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			e, err = nil, pe
		}
	}()
	p.next()
	e = p.parseExpr()
	if firstErr != nil {
		return nil, firstErr
	}
	if p.tok.Token != token.EOF {
		return nil, &ParseError{Pos: p.tok.Pos, Msg: "unexpected trailing input: " + p.tok.Token.String()}
	}
	return e, nil
}

type parser struct {
	s   scanner.Scanner
	tok scanner.TokenAndValue
}

func (p *parser) next() { p.tok = p.s.Scan() }

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Pos: p.tok.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(t token.Token) (scanner.TokenAndValue, error) {
	if p.tok.Token != t {
		return scanner.TokenAndValue{}, p.errorf("expected %s, got %s", t, p.tok.Token)
	}
	tv := p.tok
	p.next()
	return tv, nil
}

// parseExpr is the top-level production: lambda, let, if, assert, or an
// operator expression optionally followed by a type annotation.
func (p *parser) parseExpr() ast.Expr {
	switch p.tok.Token {
	case token.LAMBDA:
		return p.parseLambda()
	case token.LET:
		return p.parseLetIn()
	case token.IF:
		return p.parseIfThenElse()
	case token.ASSERT:
		return p.parseAssert()
	}

	e := p.parseOpExpr(0)
	if p.tok.Token == token.COLON {
		pos := p.tok.Pos
		p.next()
		typ := p.parseExpr()
		return ast.NewAnnot(pos, e, typ)
	}
	return e
}

func (p *parser) parseLambda() ast.Expr {
	pos := p.tok.Pos
	p.next() // consume '\'
	if _, err := p.expect(token.LPAREN); err != nil {
		return p.fail(err)
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return p.fail(err)
	}
	if _, err := p.expect(token.COLON); err != nil {
		return p.fail(err)
	}
	param := p.parseExpr()
	if _, err := p.expect(token.RPAREN); err != nil {
		return p.fail(err)
	}
	if _, err := p.expect(token.ARROW); err != nil {
		return p.fail(err)
	}
	body := p.parseExpr()
	return ast.NewLambda(pos, name.Text, param, body)
}

func (p *parser) parseLetIn() ast.Expr {
	pos := p.tok.Pos
	var bindings []ast.LetBinding
	for p.tok.Token == token.LET {
		p.next()
		name, err := p.expect(token.IDENT)
		if err != nil {
			return p.fail(err)
		}
		var annot ast.Expr
		if p.tok.Token == token.COLON {
			p.next()
			annot = p.parseOpExpr(0)
		}
		if _, err := p.expect(token.EQ); err != nil {
			return p.fail(err)
		}
		val := p.parseExpr()
		bindings = append(bindings, ast.LetBinding{Name: name.Text, Annot: annot, Value: val})
		if _, err := p.expect(token.IN); err != nil {
			return p.fail(err)
		}
	}
	body := p.parseExpr()
	return ast.NewLetIn(pos, bindings, body)
}

func (p *parser) parseIfThenElse() ast.Expr {
	pos := p.tok.Pos
	p.next()
	cond := p.parseExpr()
	if _, err := p.expect(token.THEN); err != nil {
		return p.fail(err)
	}
	then := p.parseExpr()
	if _, err := p.expect(token.ELSE); err != nil {
		return p.fail(err)
	}
	els := p.parseExpr()
	return ast.NewIfThenElse(pos, cond, then, els)
}

func (p *parser) parseAssert() ast.Expr {
	pos := p.tok.Pos
	p.next()
	if _, err := p.expect(token.COLON); err != nil {
		return p.fail(err)
	}
	cond := p.parseExpr()
	return ast.NewAssert(pos, cond)
}

// binaryPrec maps a binary operator token to its precedence (higher binds
// tighter) and the ast.BinaryOp it produces. Not every BinaryOp spec.md §3
// names has VM opcode backing (spec.md §4.1's instruction set omits
// times/import-alt); those still parse to a BinaryExpr so the Expr sum type
// stays complete, but lang/compiler raises an InternalBug CompileError on
// them, the same "recognized but not required by the core"
// treatment spec.md §6 applies to unimplemented builtins.
var binaryPrec = map[token.Token]struct {
	prec int
	op   ast.BinaryOp
}{
	token.QUESTION:   {1, ast.OpImportAlt},
	token.PIPEPIPE:   {2, ast.OpOr},
	token.PLUS:       {3, ast.OpPlus},
	token.PLUSPLUS:   {4, ast.OpTextAppend},
	token.POUND:      {5, ast.OpListAppend},
	token.AMPAMP:     {6, ast.OpAnd},
	token.SLASHBACK:  {7, ast.OpCombine},
	token.SLASHSLASH: {8, ast.OpPrefer},
	token.STAR:       {9, ast.OpTimes},
	token.EQEQ:       {10, ast.OpEqual},
	token.BANGEQ:     {10, ast.OpNotEqual},
	token.EQEQEQ:     {11, ast.OpEquivalent},
}

func (p *parser) parseOpExpr(minPrec int) ast.Expr {
	left := p.parseApplication()
	for {
		info, ok := binaryPrec[p.tok.Token]
		if !ok || info.prec < minPrec {
			return left
		}
		pos := p.tok.Pos
		op := info.op
		p.next()
		right := p.parseOpExpr(info.prec + 1)
		left = ast.NewBinaryExpr(pos, op, left, right)
	}
}

// startsPrimary reports whether tok can start a primary expression, used to
// decide where an n-ary application's argument list ends.
func startsPrimary(t token.Token) bool {
	switch t {
	case token.IDENT, token.NATURAL, token.INTEGER, token.DOUBLE, token.TEXT,
		token.LPAREN, token.LBRACE, token.LBRACK, token.SOME, token.IMPORT:
		return true
	}
	return false
}

func (p *parser) parseApplication() ast.Expr {
	head := p.parseSelector()
	var args []ast.Expr
	for startsPrimary(p.tok.Token) {
		args = append(args, p.parseSelector())
	}
	if len(args) == 0 {
		return head
	}
	return ast.NewApplication(head.Pos(), head, args)
}

func (p *parser) parseSelector() ast.Expr {
	e := p.parsePrimary()
	for p.tok.Token == token.DOT {
		p.next()
		label, err := p.expect(token.IDENT)
		if err != nil {
			return p.fail(err)
		}
		e = ast.NewSelect(e.Pos(), e, label.Text)
	}
	return e
}

func (p *parser) parsePrimary() ast.Expr {
	tv := p.tok
	switch tv.Token {
	case token.NATURAL:
		p.next()
		n, _ := strconv.ParseUint(tv.Text, 10, 64)
		return ast.NewNaturalLit(tv.Pos, n)

	case token.INTEGER:
		p.next()
		n, _ := strconv.ParseInt(tv.Text, 10, 64)
		return ast.NewIntegerLit(tv.Pos, n)

	case token.DOUBLE:
		p.next()
		f, _ := strconv.ParseFloat(tv.Text, 64)
		return ast.NewDoubleLit(tv.Pos, f)

	case token.TEXT:
		p.next()
		chunks, err := parseTextChunks(tv.Pos, tv.Text)
		if err != nil {
			return p.fail(err)
		}
		return ast.NewTextLit(tv.Pos, chunks)

	case token.IDENT:
		p.next()
		switch tv.Text {
		case "True":
			return ast.NewBoolLit(tv.Pos, true)
		case "False":
			return ast.NewBoolLit(tv.Pos, false)
		case "List":
			elem := p.parseSelector()
			return ast.NewListType(tv.Pos, elem)
		}
		if strings.Contains(tv.Text, "/") {
			return ast.NewBuiltinRef(tv.Pos, tv.Text)
		}
		idx := 0
		if p.tok.Token == token.AT {
			p.next()
			n, err := p.expect(token.NATURAL)
			if err != nil {
				return p.fail(err)
			}
			v, _ := strconv.Atoi(n.Text)
			idx = v
		}
		return ast.NewVar(tv.Pos, tv.Text, idx)

	case token.SOME:
		p.next()
		v := p.parseSelector()
		return ast.NewSomeExpr(tv.Pos, v)

	case token.LPAREN:
		p.next()
		e := p.parseExpr()
		if _, err := p.expect(token.RPAREN); err != nil {
			return p.fail(err)
		}
		return e

	case token.LBRACE:
		return p.parseRecord()

	case token.LBRACK:
		return p.parseList()

	case token.IMPORT:
		return p.parseImport()
	}
	return p.fail(p.errorf("unexpected token %s", tv.Token))
}

func (p *parser) parseRecord() ast.Expr {
	pos := p.tok.Pos
	p.next() // consume '{'
	var fields []ast.RecordField
	isType := false
	first := true
	for p.tok.Token != token.RBRACE {
		if !first {
			if _, err := p.expect(token.COMMA); err != nil {
				return p.fail(err)
			}
		}
		first = false
		label, err := p.expect(token.IDENT)
		if err != nil {
			return p.fail(err)
		}
		switch p.tok.Token {
		case token.EQ:
			p.next()
			fields = append(fields, ast.RecordField{Label: label.Text, Value: p.parseOpExpr(0)})
		case token.COLON:
			isType = true
			p.next()
			fields = append(fields, ast.RecordField{Label: label.Text, Value: p.parseOpExpr(0)})
		default:
			return p.fail(p.errorf("expected '=' or ':' in record field, got %s", p.tok.Token))
		}
	}
	p.next() // consume '}'
	if isType {
		return ast.NewRecordType(pos, fields)
	}
	return ast.NewRecordLit(pos, fields)
}

func (p *parser) parseList() ast.Expr {
	pos := p.tok.Pos
	p.next() // consume '['
	var elems []ast.Expr
	first := true
	for p.tok.Token != token.RBRACK {
		if !first {
			if _, err := p.expect(token.COMMA); err != nil {
				return p.fail(err)
			}
		}
		first = false
		elems = append(elems, p.parseOpExpr(0))
	}
	p.next() // consume ']'
	return ast.NewListLit(pos, elems)
}

// parseImport parses `import "<origin>" [sha256 "<hexdigest>"]`. Real Dhall
// uses a bare-path grammar; this core's parser is an external collaborator
// the spec explicitly allows replacing (spec.md §1), so a quoted-origin
// form is used here to keep the scanner simple without losing any of the
// three accepted origin forms (local path / env var / remote URL) or the
// optional hash clause (spec.md §6).
func (p *parser) parseImport() ast.Expr {
	pos := p.tok.Pos
	p.next() // consume 'import'
	originTok, err := p.expect(token.TEXT)
	if err != nil {
		return p.fail(err)
	}
	origin := originTok.Text
	kind := classifyOrigin(origin)

	hash := ""
	if p.tok.Token == token.SHA256 {
		p.next()
		h, err := p.expect(token.TEXT)
		if err != nil {
			return p.fail(err)
		}
		hash = h.Text
	}
	return ast.NewImportExpr(pos, kind, origin, hash)
}

func classifyOrigin(origin string) ast.ImportKind {
	switch {
	case strings.HasPrefix(origin, "env:"):
		return ast.ImportEnvVar
	case strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://"):
		return ast.ImportRemoteURL
	default:
		return ast.ImportLocalPath
	}
}

// fail panics with err; Parse's deferred recover turns it back into a
// returned error, keeping every other call site free of error-plumbing
// since a syntax error aborts the whole parse anyway.
func (p *parser) fail(err error) ast.Expr {
	// The scanner error handler already recorded the first error for
	// well-formed lexical problems; parser-level errors (unexpected
	// token, missing punctuation) are reported here by panicking up to
	// Parse's recover, keeping every call site's signature error-free
	// except at the top.
	panic(err)
}

func parseTextChunks(pos token.Position, raw string) ([]ast.TextChunk, error) {
	var chunks []ast.TextChunk
	var lit strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			lit.WriteByte(unescape(raw[i+1]))
			i += 2
			continue
		}
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			if lit.Len() > 0 {
				chunks = append(chunks, ast.TextChunk{Literal: lit.String()})
				lit.Reset()
			}
			depth := 1
			j := i + 2
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth == 0 {
					break
				}
				j++
			}
			if depth != 0 {
				return nil, &ParseError{Pos: pos, Msg: "unterminated interpolation"}
			}
			sub := raw[i+2 : j]
			expr, err := Parse([]byte(sub))
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, ast.TextChunk{Expr: expr})
			i = j + 1
			continue
		}
		lit.WriteByte(raw[i])
		i++
	}
	if lit.Len() > 0 {
		chunks = append(chunks, ast.TextChunk{Literal: lit.String()})
	}
	return chunks, nil
}

func unescape(b byte) byte {
	switch b {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return b
	}
}
