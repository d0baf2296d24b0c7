// Package ast defines Expr, the resolved syntax tree the compiler consumes
// (spec.md §3). It is produced by lang/parser, an external collaborator in
// the sense spec.md §1 describes: the core only demands a parse function
// `text -> Expr`.
package ast

import "github.com/mna/laconic/lang/token"

// Expr is the sum type of every expression node spec.md §3 enumerates.
type Expr interface {
	// Pos returns the expression's source position, for span tagging.
	Pos() token.Position
}

type pos token.Position

func (p pos) Pos() token.Position { return token.Position(p) }

// BoolLit is a literal `True`/`False`.
type BoolLit struct {
	pos
	Value bool
}

// NaturalLit is an unsigned integer literal.
type NaturalLit struct {
	pos
	Value uint64
}

// IntegerLit is a signed integer literal (always explicitly `+`/`-` signed
// in surface syntax).
type IntegerLit struct {
	pos
	Value int64
}

// DoubleLit is a floating-point literal.
type DoubleLit struct {
	pos
	Value float64
}

// TextLit is a string literal with interpolation: Chunks alternates
// literal text and interpolated expressions.
type TextLit struct {
	pos
	Chunks []TextChunk
}

// TextChunk is either a literal run (Expr == nil) or an interpolated
// expression (Literal == "").
type TextChunk struct {
	Literal string
	Expr    Expr
}

// RecordField is a single label/value pair in a record literal or type.
type RecordField struct {
	Label string
	Value Expr
}

// RecordLit is `{ label = expr, ... }`. Later fields may reference earlier
// ones in the same literal (spec.md §4.2's RecordLit lowering declares each
// field as a local before emitting CreateRecord).
type RecordLit struct {
	pos
	Fields []RecordField
}

// RecordType is `{ label : type, ... }`, evaluated structurally to a Value
// like any other expression (spec.md §9: "type evaluation without a type
// checker").
type RecordType struct {
	pos
	Fields []RecordField
}

// ListLit is `[e1, e2, ...]`.
type ListLit struct {
	pos
	Elems []Expr
}

// ListType is `List T`.
type ListType struct {
	pos
	Elem Expr
}

// UnionAlt is one alternative of a union type, with an optional payload
// type (nil for a unit-like alternative).
type UnionAlt struct {
	Label string
	Type  Expr // nil if the alternative carries no payload
}

// UnionType is `< Alt1 : T1 | Alt2 >`, evaluated structurally.
type UnionType struct {
	pos
	Alts []UnionAlt
}

// SomeExpr is `Some e`, lowered by the compiler as an application of the
// `Some` builtin token rather than a dedicated opcode (spec.md §9,
// mirroring `compiler.rs`).
type SomeExpr struct {
	pos
	Value Expr
}

// Var is an identifier reference with a De-Bruijn-style shadowing index:
// `x@k` skips k prior occurrences of the name before matching (spec.md
// §4.2); Index defaults to 0 when the surface syntax omits `@k`.
type Var struct {
	pos
	Name  string
	Index int
}

// Select is field projection, `e.label`.
type Select struct {
	pos
	Record Expr
	Label  string
}

// Lambda is `\(name : annot) -> body`.
type Lambda struct {
	pos
	Param Expr // the parameter's annotation expression; parsed, but neither compiled nor checked
	Name  string
	Body  Expr
}

// FnType is `T1 -> T2`, evaluated structurally like any type expression.
type FnType struct {
	pos
	From Expr
	To   Expr
}

// Application is n-ary application in canonical left-to-right order: `head
// arg1 arg2 ...`. Evaluation is call-by-value, left-to-right (spec.md
// §4.2).
type Application struct {
	pos
	Head Expr
	Args []Expr
}

// BinaryOp enumerates the core's binary operators (spec.md §3).
type BinaryOp int

const (
	OpPlus BinaryOp = iota
	OpTextAppend
	OpListAppend
	OpEqual
	OpNotEqual
	OpAnd
	OpOr
	OpCombine
	OpPrefer
	OpCombineTypes
	OpTimes
	OpEquivalent
	OpImportAlt
)

// BinaryExpr is a two-operand operator application.
type BinaryExpr struct {
	pos
	Op          BinaryOp
	Left, Right Expr
}

// IfThenElse is `if c then t else e`. Per spec.md §4.2/§9 only the taken
// branch's side-effecting work (import resolution, builtin calls) may be
// performed; this core lowers it via JumpIfFalse/Jump (SPEC_FULL.md §4),
// which naturally guarantees that.
type IfThenElse struct {
	pos
	Cond, Then, Else Expr
}

// LetBinding is one `name [: annot] = value` clause of a LetIn block.
type LetBinding struct {
	Name   string
	Annot  Expr // nil if omitted
	Value  Expr
}

// LetIn is a sequence of bindings followed by a body, each binding visible
// to subsequent bindings and to the body (spec.md §3).
type LetIn struct {
	pos
	Bindings []LetBinding
	Body     Expr
}

// Annot is a type ascription `e : T`; compiles to e's own code (spec.md
// §4.2).
type Annot struct {
	pos
	Value Expr
	Type  Expr
}

// Assert is `assert : e`; evaluates e and requires Bool(true) at runtime.
type Assert struct {
	pos
	Cond Expr
}

// BuiltinRef is a reference to a named builtin, e.g. `Natural/even`.
type BuiltinRef struct {
	pos
	Name string
}

// ImportKind tags which of the three accepted origin forms an ImportExpr
// names (spec.md §6).
type ImportKind int

const (
	ImportLocalPath ImportKind = iota
	ImportEnvVar
	ImportRemoteURL
)

// ImportExpr is an import descriptor: local path, environment variable, or
// remote URL, with an optional sha256 integrity clause that lang/imports
// checks against the fetched bytes when present.
type ImportExpr struct {
	pos
	Kind   ImportKind
	Origin string // path, env var name, or URL, depending on Kind
	Hash   string // hex digest without the "sha256:" prefix, or "" if absent
}

// Constructors. lang/parser (and anything else building a tree outside this
// package) cannot set the unexported embedded pos field directly, so each
// node gets a constructor that stamps it from a token.Position.

func NewBoolLit(p token.Position, v bool) *BoolLit   { return &BoolLit{pos: pos(p), Value: v} }
func NewNaturalLit(p token.Position, v uint64) *NaturalLit {
	return &NaturalLit{pos: pos(p), Value: v}
}
func NewIntegerLit(p token.Position, v int64) *IntegerLit {
	return &IntegerLit{pos: pos(p), Value: v}
}
func NewDoubleLit(p token.Position, v float64) *DoubleLit {
	return &DoubleLit{pos: pos(p), Value: v}
}
func NewTextLit(p token.Position, chunks []TextChunk) *TextLit {
	return &TextLit{pos: pos(p), Chunks: chunks}
}
func NewRecordLit(p token.Position, fields []RecordField) *RecordLit {
	return &RecordLit{pos: pos(p), Fields: fields}
}
func NewRecordType(p token.Position, fields []RecordField) *RecordType {
	return &RecordType{pos: pos(p), Fields: fields}
}
func NewListLit(p token.Position, elems []Expr) *ListLit {
	return &ListLit{pos: pos(p), Elems: elems}
}
func NewListType(p token.Position, elem Expr) *ListType {
	return &ListType{pos: pos(p), Elem: elem}
}
func NewUnionType(p token.Position, alts []UnionAlt) *UnionType {
	return &UnionType{pos: pos(p), Alts: alts}
}
func NewSomeExpr(p token.Position, v Expr) *SomeExpr { return &SomeExpr{pos: pos(p), Value: v} }
func NewVar(p token.Position, name string, index int) *Var {
	return &Var{pos: pos(p), Name: name, Index: index}
}
func NewSelect(p token.Position, rec Expr, label string) *Select {
	return &Select{pos: pos(p), Record: rec, Label: label}
}
func NewLambda(p token.Position, name string, param, body Expr) *Lambda {
	return &Lambda{pos: pos(p), Name: name, Param: param, Body: body}
}
func NewFnType(p token.Position, from, to Expr) *FnType {
	return &FnType{pos: pos(p), From: from, To: to}
}
func NewApplication(p token.Position, head Expr, args []Expr) *Application {
	return &Application{pos: pos(p), Head: head, Args: args}
}
func NewBinaryExpr(p token.Position, op BinaryOp, l, r Expr) *BinaryExpr {
	return &BinaryExpr{pos: pos(p), Op: op, Left: l, Right: r}
}
func NewIfThenElse(p token.Position, c, t, e Expr) *IfThenElse {
	return &IfThenElse{pos: pos(p), Cond: c, Then: t, Else: e}
}
func NewLetIn(p token.Position, bindings []LetBinding, body Expr) *LetIn {
	return &LetIn{pos: pos(p), Bindings: bindings, Body: body}
}
func NewAnnot(p token.Position, v, t Expr) *Annot { return &Annot{pos: pos(p), Value: v, Type: t} }
func NewAssert(p token.Position, c Expr) *Assert  { return &Assert{pos: pos(p), Cond: c} }
func NewBuiltinRef(p token.Position, name string) *BuiltinRef {
	return &BuiltinRef{pos: pos(p), Name: name}
}
func NewImportExpr(p token.Position, kind ImportKind, origin, hash string) *ImportExpr {
	return &ImportExpr{pos: pos(p), Kind: kind, Origin: origin, Hash: hash}
}
