// Package bytecode defines the instruction set, constant pool, function
// object, upvalue descriptors and closure object shared by the compiler and
// the machine (spec.md §3, §4.1). It is the shared leaf package the two
// depend on, the way the teacher's opcode.go is a leaf of compiler and the
// runtime value model is a leaf of machine: this avoids an import cycle
// between lang/compiler (which must run lang/machine to eagerly evaluate
// imports) and lang/machine (which executes what lang/compiler produces).
package bytecode

import (
	"fmt"

	"github.com/mna/laconic/lang/values"
)

// Op is a single bytecode operation (spec.md §4.1).
type Op uint8

//nolint:revive
const (
	Nop Op = iota

	Constant // Constant(k) — push constant pool entry k
	Import   // Import(k) — push pre-resolved import value at registry index k
	Builtin  // Builtin(b) — push a BuiltinToken for the named primitive b

	GetVar   // GetVar(i) — push a copy of frame.stack_offset+i
	GetUpval // GetUpval(j) — push a copy of the current closure's j-th upvalue cell

	Pop        // discard top
	PopBeneath // remove the element below top, preserving top

	Closure // Closure(k) — materialize a Closure over constant k (a Function); followed by Upvalue_count Upval pseudo-ops
	Upval   // pseudo-op following Closure: operand encodes Local(i) vs Upval(j), see UpvalArg

	CloseUpvalue        // CloseUpvalue(i) — close the cell pointing at frame.stack_offset+i
	CloseUpvalueBeneath // close the cell pointing at the slot below top, then remove that slot

	Call   // Call(n) — consume top n values as args plus a callable beneath them
	Return // pop result, truncate stack to frame.stack_offset, pop frame, push result

	CreateRecord // CreateRecord(n) — consume n (key,value) pairs, push a Record
	CreateList   // CreateList(n) — consume n values, push a List

	// Select(k) pops a Record and pushes the field named by constant k (a
	// String). Field selection is part of Expr (spec.md §3) but the
	// normative instruction set (spec.md §4.1) has no opcode for it; this
	// is a minimal addition filling that gap, not a change to anything the
	// table already specifies.
	Select

	Jump        // unconditional relative jump
	JumpIfFalse // pop Bool; jump if false

	Add        // Natural+Natural or Integer+Integer
	TextAppend // String++String
	ListAppend // List#List
	Equal      // structural equality, same-kind operands only
	NotEqual
	And // strict Bool&&Bool
	Or  // strict Bool||Bool
	Combine
	Prefer

	// Assert pops a Bool; if false, the machine raises AssertionFailed
	// (spec.md §7), else it pushes Bool(true) back as the assertion
	// expression's (vacuous) result. Like Select, this is an addition
	// filling a normative-table gap: spec.md §3 models `assert` as an
	// Expr, but §4.1's instruction table has no dedicated opcode for it.
	Assert

	maxOp
)

var opNames = [...]string{
	Nop:                 "nop",
	Constant:            "constant",
	Import:              "import",
	Builtin:             "builtin",
	GetVar:              "getvar",
	GetUpval:            "getupval",
	Pop:                 "pop",
	PopBeneath:          "popbeneath",
	Closure:             "closure",
	Upval:               "upval",
	CloseUpvalue:        "closeupvalue",
	CloseUpvalueBeneath: "closeupvaluebeneath",
	Call:                "call",
	Return:              "return",
	CreateRecord:        "createrecord",
	CreateList:          "createlist",
	Select:              "select",
	Jump:                "jump",
	JumpIfFalse:         "jumpiffalse",
	Add:                 "add",
	TextAppend:          "textappend",
	ListAppend:          "listappend",
	Equal:               "equal",
	NotEqual:            "notequal",
	And:                 "and",
	Or:                  "or",
	Combine:             "combine",
	Prefer:              "prefer",
	Assert:              "assert",
}

func (op Op) String() string {
	if op < maxOp && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

// UpvalueLoc tags where a static upvalue descriptor points: the immediately
// enclosing frame's locals, or the enclosing frame's own upvalue list
// (spec.md §3, "Upvalue descriptor (static)").
type UpvalueLoc uint8

const (
	Local UpvalueLoc = iota
	Outer
)

// UpvalueDesc is a static upvalue descriptor attached to a Function,
// consumed one-per-Upval-pseudo-op immediately following a Closure op.
type UpvalueDesc struct {
	Loc   UpvalueLoc
	Index int
}

// EncodeUpvalOperand packs a UpvalueDesc into the single integer Operand an
// Upval pseudo-op instruction carries.
func EncodeUpvalOperand(d UpvalueDesc) int {
	loc := 0
	if d.Loc == Outer {
		loc = 1
	}
	return d.Index<<1 | loc
}

// DecodeUpvalOperand is the inverse of EncodeUpvalOperand.
func DecodeUpvalOperand(operand int) UpvalueDesc {
	loc := Local
	if operand&1 == 1 {
		loc = Outer
	}
	return UpvalueDesc{Loc: loc, Index: operand >> 1}
}

// Instruction is one bytecode operation plus its operand and source span
// tag. The core spec only mandates an ordered opcode sequence, a parallel
// span sequence, and inline integer/constant-index operands (spec.md §3);
// it does not mandate a packed byte encoding, so — unlike the teacher's
// varint-packed Code []byte — each instruction here is a plain struct. This
// keeps the VM's fetch-decode-dispatch loop a simple slice walk while still
// satisfying every invariant the spec actually requires.
type Instruction struct {
	Op      Op
	Operand int // constant index / stack slot / arg count / jump delta, depending on Op
	Span    int // per-instruction span tag (spec.md §1: "reserved for diagnostics")
}

// Chunk is a per-function container: code, a parallel span sequence folded
// into Instruction.Span, and a constant pool (spec.md §3).
type Chunk struct {
	Code      []Instruction
	Constants []values.Value
}

// AddConstant appends v to the constant pool and returns its index.
func (c *Chunk) AddConstant(v values.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Emit appends an instruction and returns its index in Code.
func (c *Chunk) Emit(op Op, operand, span int) int {
	c.Code = append(c.Code, Instruction{Op: op, Operand: operand, Span: span})
	return len(c.Code) - 1
}

// Function is an immutable compiled unit: a fixed arity and its Chunk
// (spec.md §3). The root unit of a compiled program is a Function with
// arity 0. A Function also carries the static upvalue descriptors needed to
// build Closures over it, and its source name (for diagnostics).
type Function struct {
	Name      string
	Arity     int
	Chunk     *Chunk
	Upvalues  []UpvalueDesc
}

func (f *Function) String() string { return fmt.Sprintf("<function %s/%d>", f.Name, f.Arity) }
func (*Function) Kind() string     { return "Function" }

var _ values.Value = (*Function)(nil)

// Closure pairs a Function with the runtime Upvalue cell handles captured
// at the moment of its creation (spec.md §3). Multiple closures may share a
// cell; the cell's lifetime equals the longest-living sharing closure.
type Closure struct {
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) String() string { return fmt.Sprintf("<closure %s>", c.Function.Name) }
func (*Closure) Kind() string     { return "Closure" }

var _ values.Value = (*Closure)(nil)

// Upvalue is the runtime cell backing a captured variable: it is Open while
// it proxies to a live operand-stack slot, and irreversibly transitions to
// Closed — at which point it owns its Value independently of the stack —
// when the enclosing frame's window is about to shrink (spec.md §3).
type Upvalue struct {
	// StackIndex is the absolute operand-stack index this cell proxies to
	// while Closed is false. Meaningless once Closed is true.
	StackIndex int
	Closed     bool
	Value      values.Value // valid only once Closed is true
}

// Close snapshots v into the cell and marks it Closed. One-way: Open ->
// Closed only.
func (u *Upvalue) Close(v values.Value) {
	u.Value = v
	u.Closed = true
}
