// Package compiler lowers a resolved lang/ast.Expr into a tree of
// lang/bytecode.Function objects (spec.md §4.2), resolving every name
// reference to a local slot, a captured upvalue, or a built-in, and
// eagerly resolving imports by recursively compiling and running them on
// lang/machine (spec.md §4.4). Grounded on the teacher's pcomp/fcomp split
// (_examples/mna-nenuphar/lang/compiler/compiler.go) and on the original
// source's Compiler/FunctionCompiler (_examples/original_source/src/compiler.rs),
// adapted from a pre-resolved-scope CFG compiler to this spec's direct,
// recursive-descent name resolution.
package compiler

import (
	"github.com/mna/laconic/lang/ast"
	"github.com/mna/laconic/lang/builtin"
	"github.com/mna/laconic/lang/bytecode"
	"github.com/mna/laconic/lang/errs"
	"github.com/mna/laconic/lang/imports"
	"github.com/mna/laconic/lang/machine"
	"github.com/mna/laconic/lang/values"
)

// primitiveTypeNames are the bare type identifiers a RecordType/annotation
// may reference (e.g. `{ a : Natural }`); they resolve to a BuiltinToken
// constant rather than VarUndefined when no local/upvalue shadows them.
// This is how type expressions evaluate to a Value without a checker
// (spec.md §9, SPEC_FULL.md §4).
var primitiveTypeNames = map[string]bool{
	"Bool": true, "Natural": true, "Integer": true, "Text": true, "Double": true,
	"Optional": true,
}

// Compiler holds the state shared across every unit compiled for one
// top-level evaluation: the import registry (spec.md §4.4's "process-wide
// dictionary", encapsulated per §9's recommendation rather than a package
// global). The base directory for local-path imports is passed per unit to
// CompileSource and kept in each compile frame.
type Compiler struct {
	registry *registry
}

// New returns a Compiler with a fresh, empty import registry.
func New() *Compiler {
	return &Compiler{registry: newRegistry()}
}

// CompileSource compiles e (the top-level program) rooted at baseDir
// (used to resolve relative local-path imports) into the root Function,
// arity 0 (spec.md §3).
func (c *Compiler) CompileSource(e ast.Expr, baseDir string) (*bytecode.Function, error) {
	return c.compileUnit(e, baseDir, "<top-level>")
}

// Registry exposes the accumulated import values, to be handed to
// lang/machine as the running program's import registry (Import(k) reads
// registry[k] at runtime, spec.md §4.1).
func (c *Compiler) Registry() []values.Value { return c.registry.values }

func (c *Compiler) compileUnit(e ast.Expr, baseDir, name string) (*bytecode.Function, error) {
	fc := &fcomp{
		compiler: c,
		fn:       &bytecode.Function{Name: name, Arity: 0, Chunk: &bytecode.Chunk{}},
		baseDir:  baseDir,
	}
	// Slot 0 is conventionally reserved for the callee itself, matching
	// every non-root Function's calling convention (spec.md §4.2's Lambda
	// rule); the root unit has no caller-visible slot 0 value, but keeping
	// the convention uniform means GetVar(i) never needs special-casing
	// arity-0 functions.
	fc.locals = append(fc.locals, &local{Name: "<top-level>", Depth: 0})
	if err := fc.compileExpr(e); err != nil {
		return nil, err
	}
	fc.fn.Chunk.Emit(bytecode.Return, 0, spanOf(e))
	return fc.fn, nil
}

// local models one operand-stack slot within a compile frame (spec.md
// §4.2's "Local { name, depth, is_captured }").
type local struct {
	Name       string
	Depth      int
	IsCaptured bool
}

// fcomp is one compile frame: the Function under construction, plus the
// bookkeeping needed to resolve names to locals/upvalues (spec.md §4.2).
type fcomp struct {
	compiler   *Compiler
	enclosing  *fcomp
	fn         *bytecode.Function
	baseDir    string
	locals     []*local
	scopeDepth int
}

func spanOf(e ast.Expr) int { return e.Pos().Offset }

func (f *fcomp) emit(op bytecode.Op, operand int, span int) int {
	return f.fn.Chunk.Emit(op, operand, span)
}

func (f *fcomp) addConstant(v values.Value) int { return f.fn.Chunk.AddConstant(v) }

func (f *fcomp) beginScope() { f.scopeDepth++ }

// endScope pops every local declared at the current depth, newest first.
// When preserveTop is true (record/list/let scopes, which leave a result
// on top of stack) it uses the *Beneath variants; otherwise (a lambda
// frame about to Return, which truncates its whole window) it only closes
// captured cells; stack cleanup there is Return's job.
func (f *fcomp) endScope(preserveTop bool, span int) {
	depth := f.scopeDepth
	for len(f.locals) > 0 && f.locals[len(f.locals)-1].Depth == depth {
		last := f.locals[len(f.locals)-1]
		if preserveTop {
			if last.IsCaptured {
				f.emit(bytecode.CloseUpvalueBeneath, 0, span)
			} else {
				f.emit(bytecode.PopBeneath, 0, span)
			}
		} else if last.IsCaptured {
			f.emit(bytecode.CloseUpvalue, len(f.locals)-1, span)
		}
		f.locals = f.locals[:len(f.locals)-1]
	}
	f.scopeDepth--
}

// declareLocal adds name as a new local at the current scope depth,
// failing with VarRedefinition if name is already bound at this same
// depth (spec.md §8's negative case).
func (f *fcomp) declareLocal(name string, span int) (int, error) {
	for _, l := range f.locals {
		if l.Depth == f.scopeDepth && l.Name == name {
			return 0, &errs.CompileError{Kind: errs.VarRedefinition, Name: name, Span: span}
		}
	}
	f.locals = append(f.locals, &local{Name: name, Depth: f.scopeDepth})
	return len(f.locals) - 1, nil
}

// resolution is the result of resolveVariable: either a local slot index
// in f itself, or an upvalue index in f's own upvalue list.
type resolution struct {
	isLocal bool
	index   int
}

// resolveVariable implements spec.md §4.2's name resolution algorithm.
func (f *fcomp) resolveVariable(name string, skip int) (resolution, bool, error) {
	count := 0
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].Name == name {
			if count == skip {
				return resolution{isLocal: true, index: i}, true, nil
			}
			count++
		}
	}
	if f.enclosing == nil {
		return resolution{}, false, nil
	}
	parent, found, err := f.enclosing.resolveVariable(name, skip-count)
	if err != nil || !found {
		return resolution{}, false, err
	}
	var desc bytecode.UpvalueDesc
	if parent.isLocal {
		f.enclosing.locals[parent.index].IsCaptured = true
		desc = bytecode.UpvalueDesc{Loc: bytecode.Local, Index: parent.index}
	} else {
		desc = bytecode.UpvalueDesc{Loc: bytecode.Outer, Index: parent.index}
	}
	idx := f.addUpvalue(desc)
	return resolution{isLocal: false, index: idx}, true, nil
}

func (f *fcomp) addUpvalue(desc bytecode.UpvalueDesc) int {
	for i, d := range f.fn.Upvalues {
		if d == desc {
			return i
		}
	}
	f.fn.Upvalues = append(f.fn.Upvalues, desc)
	return len(f.fn.Upvalues) - 1
}

func (f *fcomp) compileExpr(e ast.Expr) error {
	span := spanOf(e)
	switch n := e.(type) {
	case *ast.BoolLit:
		f.emit(bytecode.Constant, f.addConstant(values.Bool(n.Value)), span)
	case *ast.NaturalLit:
		f.emit(bytecode.Constant, f.addConstant(values.Natural(n.Value)), span)
	case *ast.IntegerLit:
		f.emit(bytecode.Constant, f.addConstant(values.Integer(n.Value)), span)
	case *ast.DoubleLit:
		f.emit(bytecode.Constant, f.addConstant(values.Double(n.Value)), span)
	case *ast.TextLit:
		return f.compileTextLit(n)
	case *ast.RecordLit:
		return f.compileRecordFields(n.Fields, span)
	case *ast.RecordType:
		return f.compileRecordFields(n.Fields, span)
	case *ast.ListLit:
		return f.compileListElems(n.Elems, span)
	case *ast.ListType:
		return f.compileListElems([]ast.Expr{n.Elem}, span)
	case *ast.UnionType:
		return f.compileUnionType(n, span)
	case *ast.FnType:
		return f.compileListElems([]ast.Expr{n.From, n.To}, span)
	case *ast.SomeExpr:
		return f.compileApplicationParts(span, func() error {
			f.emit(bytecode.Builtin, f.addConstant(values.BuiltinToken{Name: "Some", Arity: 1}), span)
			return nil
		}, []ast.Expr{n.Value})
	case *ast.Var:
		return f.compileVar(n)
	case *ast.Select:
		if err := f.compileExpr(n.Record); err != nil {
			return err
		}
		f.emit(bytecode.Select, f.addConstant(values.String(n.Label)), span)
	case *ast.Lambda:
		return f.compileLambda(n)
	case *ast.Application:
		return f.compileApplication(n)
	case *ast.BinaryExpr:
		return f.compileBinary(n)
	case *ast.IfThenElse:
		return f.compileIfThenElse(n)
	case *ast.LetIn:
		return f.compileLetIn(n)
	case *ast.Annot:
		// Annotation compiles to the inner expression's code (spec.md
		// §4.2); the type is parsed but never separately evaluated here
		// (non-goal: no static type checker, SPEC_FULL.md §5).
		return f.compileExpr(n.Value)
	case *ast.Assert:
		return f.compileAssert(n)
	case *ast.BuiltinRef:
		return f.compileBuiltinRef(n)
	case *ast.ImportExpr:
		return f.compileImport(n)
	default:
		return &errs.CompileError{Kind: errs.InternalBug, Message: "unhandled expr node", Span: span}
	}
	return nil
}

func (f *fcomp) compileVar(v *ast.Var) error {
	span := spanOf(v)
	res, found, err := f.resolveVariable(v.Name, v.Index)
	if err != nil {
		return err
	}
	if found {
		if res.isLocal {
			f.emit(bytecode.GetVar, res.index, span)
		} else {
			f.emit(bytecode.GetUpval, res.index, span)
		}
		return nil
	}
	if entry, ok := builtin.Lookup(v.Name); ok {
		f.emit(bytecode.Builtin, f.addConstant(values.BuiltinToken{Name: entry.Name, Arity: entry.Arity}), span)
		return nil
	}
	if primitiveTypeNames[v.Name] {
		f.emit(bytecode.Constant, f.addConstant(values.BuiltinToken{Name: v.Name}), span)
		return nil
	}
	return &errs.CompileError{Kind: errs.VarUndefined, Name: v.Name, Span: span}
}

func (f *fcomp) compileBuiltinRef(n *ast.BuiltinRef) error {
	span := spanOf(n)
	entry, ok := builtin.Lookup(n.Name)
	if !ok {
		return &errs.CompileError{Kind: errs.VarUndefined, Name: n.Name, Span: span}
	}
	f.emit(bytecode.Builtin, f.addConstant(values.BuiltinToken{Name: entry.Name, Arity: entry.Arity}), span)
	return nil
}

// compileTextLit pushes each literal/interpolated chunk in order, then
// folds them with TextAppend (spec.md §4.2).
func (f *fcomp) compileTextLit(n *ast.TextLit) error {
	span := spanOf(n)
	if len(n.Chunks) == 0 {
		f.emit(bytecode.Constant, f.addConstant(values.String("")), span)
		return nil
	}
	for i, c := range n.Chunks {
		if c.Expr != nil {
			if err := f.compileExpr(c.Expr); err != nil {
				return err
			}
		} else {
			f.emit(bytecode.Constant, f.addConstant(values.String(c.Literal)), span)
		}
		if i > 0 {
			f.emit(bytecode.TextAppend, 0, span)
		}
	}
	return nil
}

// compileRecordFields implements spec.md §4.2's RecordLit lowering,
// reused verbatim for RecordType since the bytecode it needs — a scoped
// field-local per entry, then (key,value) pairs into CreateRecord(n) — is
// identical whether the field values are ordinary expressions or type
// expressions (SPEC_FULL.md §4).
func (f *fcomp) compileRecordFields(fields []ast.RecordField, span int) error {
	fields = dedupFieldsLastWriterWins(fields)
	f.beginScope()
	localIdx := make([]int, len(fields))
	for i, field := range fields {
		if err := f.compileExpr(field.Value); err != nil {
			return err
		}
		idx, err := f.declareLocal(field.Label, span)
		if err != nil {
			return err
		}
		localIdx[i] = idx
	}
	for i, field := range fields {
		f.emit(bytecode.Constant, f.addConstant(values.String(field.Label)), span)
		f.emit(bytecode.GetVar, localIdx[i], span)
	}
	f.emit(bytecode.CreateRecord, len(fields), span)
	f.endScope(true, span)
	return nil
}

func dedupFieldsLastWriterWins(fields []ast.RecordField) []ast.RecordField {
	seen := make(map[string]int, len(fields))
	out := make([]ast.RecordField, 0, len(fields))
	for _, fl := range fields {
		if idx, ok := seen[fl.Label]; ok {
			out[idx] = fl
			continue
		}
		seen[fl.Label] = len(out)
		out = append(out, fl)
	}
	return out
}

func (f *fcomp) compileListElems(elems []ast.Expr, span int) error {
	for _, e := range elems {
		if err := f.compileExpr(e); err != nil {
			return err
		}
	}
	f.emit(bytecode.CreateList, len(elems), span)
	return nil
}

// compileUnionType evaluates a union type structurally as a Record keyed
// by alternative label, payload-less alternatives compiling to Bool(true)
// as a unit placeholder (SPEC_FULL.md §4).
func (f *fcomp) compileUnionType(n *ast.UnionType, span int) error {
	fields := make([]ast.RecordField, len(n.Alts))
	for i, alt := range n.Alts {
		typ := alt.Type
		if typ == nil {
			typ = ast.NewBoolLit(n.Pos(), true)
		}
		fields[i] = ast.RecordField{Label: alt.Label, Value: typ}
	}
	return f.compileRecordFields(fields, span)
}

func (f *fcomp) compileLambda(n *ast.Lambda) error {
	span := spanOf(n)
	child := &fcomp{compiler: f.compiler, enclosing: f, baseDir: f.baseDir}
	child.fn = &bytecode.Function{Name: "<lambda>", Arity: 1, Chunk: &bytecode.Chunk{}}
	child.locals = append(child.locals,
		&local{Name: "<callee>", Depth: 0},
		&local{Name: n.Name, Depth: 0},
	)
	if err := child.compileExpr(n.Body); err != nil {
		return err
	}
	bodySpan := spanOf(n.Body)
	for i, l := range child.locals {
		if l.IsCaptured {
			child.emit(bytecode.CloseUpvalue, i, bodySpan)
		}
	}
	child.emit(bytecode.Return, 0, bodySpan)

	k := f.addConstant(child.fn)
	f.emit(bytecode.Closure, k, span)
	for _, desc := range child.fn.Upvalues {
		f.emit(bytecode.Upval, bytecode.EncodeUpvalOperand(desc), span)
	}
	return nil
}

// compileApplication lowers n-ary application with the asymmetry spec.md
// §4.2/§9 describes: compile the head, then while arguments remain,
// inspect the just-emitted opcode — a Builtin bundles its full declared
// arity into one Call, anything else curries one argument at a time.
func (f *fcomp) compileApplication(n *ast.Application) error {
	return f.compileApplicationParts(spanOf(n), func() error {
		return f.compileExpr(n.Head)
	}, n.Args)
}

// compileApplicationParts factors the head/args application-lowering logic
// so SomeExpr (which applies the implicit `Some` builtin token rather than
// a parsed head, spec.md §9) can reuse it.
func (f *fcomp) compileApplicationParts(span int, compileHead func() error, args []ast.Expr) error {
	if err := compileHead(); err != nil {
		return err
	}
	i := 0
	for i < len(args) {
		last := f.fn.Chunk.Code[len(f.fn.Chunk.Code)-1]
		if last.Op == bytecode.Builtin {
			tok, ok := f.fn.Chunk.Constants[last.Operand].(values.BuiltinToken)
			if !ok {
				return &errs.CompileError{Kind: errs.InternalBug, Message: "builtin constant missing", Span: span}
			}
			if tok.Arity == 0 || i+tok.Arity > len(args) {
				return &errs.CompileError{
					Kind: errs.BuiltinArityMismatch, Name: tok.Name,
					Expected: tok.Arity, Supplied: len(args) - i, Span: span,
				}
			}
			for j := 0; j < tok.Arity; j++ {
				if err := f.compileExpr(args[i+j]); err != nil {
					return err
				}
			}
			f.emit(bytecode.Call, tok.Arity, span)
			i += tok.Arity
			continue
		}
		if err := f.compileExpr(args[i]); err != nil {
			return err
		}
		f.emit(bytecode.Call, 1, span)
		i++
	}
	return nil
}

var binaryOps = map[ast.BinaryOp]bytecode.Op{
	ast.OpPlus:       bytecode.Add,
	ast.OpTextAppend: bytecode.TextAppend,
	ast.OpListAppend: bytecode.ListAppend,
	ast.OpEqual:      bytecode.Equal,
	ast.OpNotEqual:   bytecode.NotEqual,
	ast.OpAnd:        bytecode.And,
	ast.OpOr:         bytecode.Or,
	ast.OpCombine:    bytecode.Combine,
	ast.OpPrefer:     bytecode.Prefer,
	// Equivalent reuses structural Equal (spec.md §9: "implementations may
	// widen it consistently ... but must document the extension";
	// SPEC_FULL.md §4 documents it).
	ast.OpEquivalent: bytecode.Equal,
	// CombineTypes is a type-level merge; structurally identical to a
	// value-level record Combine (SPEC_FULL.md §4).
	ast.OpCombineTypes: bytecode.Combine,
}

func (f *fcomp) compileBinary(n *ast.BinaryExpr) error {
	span := spanOf(n)
	op, ok := binaryOps[n.Op]
	if !ok {
		// Times and ImportAlt are recognized Expr shapes (spec.md §3) with
		// no normative opcode backing (spec.md §4.1); treated the same way
		// spec.md §6 treats unimplemented builtins — recognized, fails
		// cleanly on use.
		return &errs.CompileError{Kind: errs.InternalBug, Message: "operator not implemented by the core", Span: span}
	}
	if err := f.compileExpr(n.Left); err != nil {
		return err
	}
	// The left operand occupies a stack slot while the right one runs;
	// record it as an unnamed local so later locals get their true slot.
	f.locals = append(f.locals, &local{Depth: f.scopeDepth})
	err := f.compileExpr(n.Right)
	f.locals = f.locals[:len(f.locals)-1]
	if err != nil {
		return err
	}
	f.emit(op, 0, span)
	return nil
}

// compileIfThenElse lowers via JumpIfFalse/Jump (spec.md §9's
// implementation choice, documented in SPEC_FULL.md §4), guaranteeing only
// the taken branch's side-effecting work runs.
func (f *fcomp) compileIfThenElse(n *ast.IfThenElse) error {
	span := spanOf(n)
	if err := f.compileExpr(n.Cond); err != nil {
		return err
	}
	jumpToElse := f.emit(bytecode.JumpIfFalse, 0, span)
	if err := f.compileExpr(n.Then); err != nil {
		return err
	}
	jumpToEnd := f.emit(bytecode.Jump, 0, span)
	f.fn.Chunk.Code[jumpToElse].Operand = len(f.fn.Chunk.Code) - jumpToElse
	if err := f.compileExpr(n.Else); err != nil {
		return err
	}
	f.fn.Chunk.Code[jumpToEnd].Operand = len(f.fn.Chunk.Code) - jumpToEnd
	return nil
}

// compileLetIn lowers a sequence of bindings sharing one scope, then the
// body, preserving the body's result while popping/closing the bindings
// beneath it (spec.md §4.2).
func (f *fcomp) compileLetIn(n *ast.LetIn) error {
	span := spanOf(n)
	f.beginScope()
	for _, b := range n.Bindings {
		if err := f.compileExpr(b.Value); err != nil {
			return err
		}
		if _, err := f.declareLocal(b.Name, span); err != nil {
			return err
		}
	}
	if err := f.compileExpr(n.Body); err != nil {
		return err
	}
	f.endScope(true, span)
	return nil
}

func (f *fcomp) compileAssert(n *ast.Assert) error {
	span := spanOf(n)
	if err := f.compileExpr(n.Cond); err != nil {
		return err
	}
	f.emit(bytecode.Assert, 0, span)
	return nil
}

// compileImport resolves the import eagerly (spec.md §4.4): canonicalize,
// check the registry, else fetch+parse+compile+run and memoize.
func (f *fcomp) compileImport(n *ast.ImportExpr) error {
	span := spanOf(n)
	idx, err := f.compiler.registry.resolve(f.baseDir, n)
	if err != nil {
		return err
	}
	f.emit(bytecode.Import, idx, span)
	return nil
}

// registry is the compiler's own compile+evaluate memoization table
// (spec.md §4.4), distinct from lang/imports' fetch+parse collaborator:
// lang/imports never depends on lang/compiler or lang/machine, so this
// type — not a package-level global (spec.md §9's recommendation to
// encapsulate it behind an explicit evaluator context) — is the only
// place the two meet.
type registry struct {
	values     []values.Value
	index      map[string]int
	inProgress map[string]bool
}

func newRegistry() *registry {
	return &registry{index: make(map[string]int), inProgress: make(map[string]bool)}
}

// resolve eagerly fetches, parses, compiles and runs an import exactly
// once per canonical origin, memoizing the result (spec.md §4.4). Import
// failures — including the cyclic-import case (SPEC_FULL.md §4) — surface
// as a RuntimeError{Kind: ImportFailed}, the taxonomy spec.md §7 reserves
// for them, even though detection happens at compile time: eager
// resolution means "compile time" and "first and only evaluation time"
// are the same moment for an import.
func (r *registry) resolve(baseDir string, n *ast.ImportExpr) (int, error) {
	key, err := imports.Canonicalize(baseDir, imports.Origin{Kind: n.Kind, Value: n.Origin})
	if err != nil {
		return 0, &errs.RuntimeError{Kind: errs.ImportFailed, Origin: n.Origin, Cause: err, Span: spanOf(n)}
	}
	if idx, ok := r.index[key]; ok {
		return idx, nil
	}
	if r.inProgress[key] {
		return 0, &errs.RuntimeError{Kind: errs.ImportFailed, Origin: n.Origin, Message: "cycle", Span: spanOf(n)}
	}
	r.inProgress[key] = true
	defer delete(r.inProgress, key)

	expr, nextBaseDir, err := imports.Load(baseDir, imports.Origin{Kind: n.Kind, Value: n.Origin, Hash: n.Hash})
	if err != nil {
		return 0, &errs.RuntimeError{Kind: errs.ImportFailed, Origin: n.Origin, Cause: err, Span: spanOf(n)}
	}

	compiler := &Compiler{registry: r}
	fn, cerr := compiler.compileUnit(expr, nextBaseDir, key)
	if cerr != nil {
		return 0, &errs.RuntimeError{Kind: errs.ImportFailed, Origin: n.Origin, Cause: cerr, Span: spanOf(n)}
	}
	v, rerr := machine.Run(fn, r.values)
	if rerr != nil {
		return 0, &errs.RuntimeError{Kind: errs.ImportFailed, Origin: n.Origin, Cause: rerr, Span: spanOf(n)}
	}

	idx := len(r.values)
	r.values = append(r.values, v)
	r.index[key] = idx
	return idx, nil
}
