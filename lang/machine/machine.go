// Package machine implements the stack-based bytecode VM (spec.md §4):
// an operand stack, a call-frame stack, a list of live open upvalue cells,
// and a fetch-decode-dispatch loop. It depends only on lang/bytecode,
// lang/values and lang/builtin, and never on lang/compiler, so that
// lang/compiler may itself call machine.Run to eagerly evaluate imports
// without an import cycle (spec.md §4.4). Grounded on the teacher's
// frame/stack VM shape (_examples/mna-nenuphar/lang/machine/machine.go),
// adapted to this spec's open/closed-upvalue discipline.
package machine

import (
	"sort"
	"strconv"

	"github.com/mna/laconic/lang/builtin"
	"github.com/mna/laconic/lang/bytecode"
	"github.com/mna/laconic/lang/errs"
	"github.com/mna/laconic/lang/values"
)

// frame is one active call's window onto the operand stack: base is the
// absolute stack index of slot 0 (spec.md §3's frame.stack_offset).
type frame struct {
	closure *bytecode.Closure
	ip      int
	base    int
}

// machine is one run's mutable state.
type machine struct {
	stack    []values.Value
	frames   []*frame
	openUps  []*bytecode.Upvalue // open upvalues, kept sorted by StackIndex
	registry []values.Value
}

// Run executes fn (a compiled root Function, or one recursively compiled
// for eager import evaluation, spec.md §4.4) with no arguments, resolving
// any Import(k) op against registry, and returns its single result Value.
func Run(fn *bytecode.Function, registry []values.Value) (result values.Value, err error) {
	m := &machine{registry: registry}
	cl := &bytecode.Closure{Function: fn}
	m.stack = append(m.stack, cl)
	m.frames = append(m.frames, &frame{closure: cl, base: 0})

	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(*errs.RuntimeError)
			if !ok {
				panic(r)
			}
			result, err = nil, re
		}
	}()
	return m.run(), nil
}

func (m *machine) fail(kind errs.RuntimeErrorKind, span int, msg string) {
	panic(&errs.RuntimeError{Kind: kind, Span: span, Message: msg})
}

func (m *machine) curFrame() *frame { return m.frames[len(m.frames)-1] }

func (m *machine) push(v values.Value) { m.stack = append(m.stack, v) }

func (m *machine) pop(span int) values.Value {
	if len(m.stack) == 0 {
		m.fail(errs.StackUnderflow, span, "pop on empty stack")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *machine) peek(span int) values.Value {
	if len(m.stack) == 0 {
		m.fail(errs.StackUnderflow, span, "peek on empty stack")
	}
	return m.stack[len(m.stack)-1]
}

func (m *machine) popBool(span int) values.Value {
	v := m.pop(span)
	if _, ok := v.(values.Bool); !ok {
		m.fail(errs.KindError, span, "expected Bool, got "+v.Kind())
	}
	return v
}

// run drives the fetch-decode-dispatch loop until the outermost frame
// returns.
func (m *machine) run() values.Value {
	for {
		f := m.curFrame()
		code := f.closure.Function.Chunk.Code
		if f.ip >= len(code) {
			m.fail(errs.FrameUnderflow, 0, "fell off the end of a chunk without Return")
		}
		instr := code[f.ip]
		f.ip++
		span := instr.Span

		switch instr.Op {
		case bytecode.Nop:
			// no-op

		case bytecode.Constant:
			m.push(m.constant(f, instr.Operand, span))

		case bytecode.Import:
			if instr.Operand < 0 || instr.Operand >= len(m.registry) {
				m.fail(errs.ImportFailed, span, "import registry index out of range")
			}
			m.push(m.registry[instr.Operand])

		case bytecode.Builtin:
			m.push(m.constant(f, instr.Operand, span))

		case bytecode.GetVar:
			idx := f.base + instr.Operand
			if idx < 0 || idx >= len(m.stack) {
				m.fail(errs.StackUnderflow, span, "getvar out of range")
			}
			m.push(m.stack[idx])

		case bytecode.GetUpval:
			if instr.Operand < 0 || instr.Operand >= len(f.closure.Upvalues) {
				m.fail(errs.RuntimeInternalBug, span, "getupval index out of range")
			}
			up := f.closure.Upvalues[instr.Operand]
			if up.Closed {
				m.push(up.Value)
			} else {
				m.push(m.stack[up.StackIndex])
			}

		case bytecode.Pop:
			m.pop(span)

		case bytecode.PopBeneath:
			m.popBeneath(span)

		case bytecode.Closure:
			fn, ok := m.constant(f, instr.Operand, span).(*bytecode.Function)
			if !ok {
				m.fail(errs.RuntimeInternalBug, span, "closure operand is not a Function")
			}
			ups := make([]*bytecode.Upvalue, len(fn.Upvalues))
			for i := range fn.Upvalues {
				if f.ip >= len(code) || code[f.ip].Op != bytecode.Upval {
					m.fail(errs.RuntimeInternalBug, span, "missing upval pseudo-op after closure")
				}
				desc := bytecode.DecodeUpvalOperand(code[f.ip].Operand)
				f.ip++
				if desc.Loc == bytecode.Local {
					ups[i] = m.captureUpvalue(f.base + desc.Index)
				} else {
					ups[i] = f.closure.Upvalues[desc.Index]
				}
			}
			m.push(&bytecode.Closure{Function: fn, Upvalues: ups})

		case bytecode.Upval:
			m.fail(errs.RuntimeInternalBug, span, "stray upval pseudo-op")

		case bytecode.CloseUpvalue:
			m.closeUpvalueAt(f.base + instr.Operand)

		case bytecode.CloseUpvalueBeneath:
			idx := len(m.stack) - 2
			if idx < 0 {
				m.fail(errs.StackUnderflow, span, "closeupvaluebeneath on too-short stack")
			}
			m.closeUpvalueAt(idx)
			m.removeBeneath(idx)

		case bytecode.Call:
			m.call(instr.Operand, span)

		case bytecode.Return:
			result := m.pop(span)
			base := f.base
			m.stack = m.stack[:base]
			m.frames = m.frames[:len(m.frames)-1]
			if len(m.frames) == 0 {
				return result
			}
			m.push(result)

		case bytecode.CreateRecord:
			m.createRecord(instr.Operand, span)

		case bytecode.CreateList:
			m.createList(instr.Operand, span)

		case bytecode.Select:
			m.selectField(f, instr.Operand, span)

		case bytecode.Jump:
			f.ip += instr.Operand - 1

		case bytecode.JumpIfFalse:
			cond := m.popBool(span)
			if !bool(cond.(values.Bool)) {
				f.ip += instr.Operand - 1
			}

		case bytecode.Add:
			m.binaryAdd(span)
		case bytecode.TextAppend:
			m.binaryTextAppend(span)
		case bytecode.ListAppend:
			m.binaryListAppend(span)
		case bytecode.Equal:
			m.binaryEqual(span, false)
		case bytecode.NotEqual:
			m.binaryEqual(span, true)
		case bytecode.And:
			m.binaryBool(span, func(a, b bool) bool { return a && b })
		case bytecode.Or:
			m.binaryBool(span, func(a, b bool) bool { return a || b })
		case bytecode.Combine:
			m.binaryCombine(span)
		case bytecode.Prefer:
			m.binaryPrefer(span)
		case bytecode.Assert:
			cond := m.popBool(span)
			if !bool(cond.(values.Bool)) {
				m.fail(errs.AssertionFailed, span, "assertion failed")
			}
			m.push(values.Bool(true))

		default:
			m.fail(errs.RuntimeInternalBug, span, "unhandled opcode "+instr.Op.String())
		}
	}
}

func (m *machine) constant(f *frame, k, span int) values.Value {
	consts := f.closure.Function.Chunk.Constants
	if k < 0 || k >= len(consts) {
		m.fail(errs.ConstantIndexOutOfRange, span, "constant index out of range")
	}
	return consts[k]
}

// popBeneath removes the element directly below the current top,
// preserving top (spec.md §3's PopBeneath).
func (m *machine) popBeneath(span int) {
	if len(m.stack) < 2 {
		m.fail(errs.StackUnderflow, span, "popbeneath on too-short stack")
	}
	m.removeBeneath(len(m.stack) - 2)
}

func (m *machine) removeBeneath(idx int) {
	top := m.stack[len(m.stack)-1]
	m.stack = append(m.stack[:idx], top)
}

// captureUpvalue returns the open cell pointing at absIdx, creating one if
// none exists yet; mandatory reuse so multiple closures capturing the same
// local share one cell (spec.md §3).
func (m *machine) captureUpvalue(absIdx int) *bytecode.Upvalue {
	i := sort.Search(len(m.openUps), func(i int) bool { return m.openUps[i].StackIndex >= absIdx })
	if i < len(m.openUps) && m.openUps[i].StackIndex == absIdx {
		return m.openUps[i]
	}
	up := &bytecode.Upvalue{StackIndex: absIdx}
	m.openUps = append(m.openUps, nil)
	copy(m.openUps[i+1:], m.openUps[i:])
	m.openUps[i] = up
	return up
}

// closeUpvalueAt closes (and stops tracking as open) the cell pointing at
// absIdx, if one is currently open. A local never captured has no open
// cell and this is a no-op, matching spec.md's "closing has no effect on
// already-closed cells" note generalized to never-opened ones.
func (m *machine) closeUpvalueAt(absIdx int) {
	i := sort.Search(len(m.openUps), func(i int) bool { return m.openUps[i].StackIndex >= absIdx })
	if i >= len(m.openUps) || m.openUps[i].StackIndex != absIdx {
		return
	}
	m.openUps[i].Close(m.stack[absIdx])
	m.openUps = append(m.openUps[:i], m.openUps[i+1:]...)
}

// call implements Call(n): a Closure callee always takes exactly the
// curried single argument (spec.md §4.2/§9's currying rule for user
// lambdas); a BuiltinToken callee consumes its full declared arity in one
// step (spec.md §9's builtin-arity-bundling rule).
func (m *machine) call(n, span int) {
	if len(m.stack) < n+1 {
		m.fail(errs.StackUnderflow, span, "call: not enough operands")
	}
	args := make([]values.Value, n)
	copy(args, m.stack[len(m.stack)-n:])
	m.stack = m.stack[:len(m.stack)-n]
	callee := m.pop(span)

	switch c := callee.(type) {
	case *bytecode.Closure:
		if c.Function.Arity != n {
			m.fail(errs.ArityMismatch, span, "closure expects "+strconv.Itoa(c.Function.Arity)+" arg(s), got "+strconv.Itoa(n))
		}
		base := len(m.stack)
		m.push(c)
		for _, a := range args {
			m.push(a)
		}
		m.frames = append(m.frames, &frame{closure: c, base: base})

	case values.BuiltinToken:
		entry, ok := builtin.Lookup(c.Name)
		if !ok || entry.Handler == nil {
			m.fail(errs.RuntimeInternalBug, span, "unimplemented builtin "+c.Name)
		}
		if entry.Arity != n {
			m.fail(errs.ArityMismatch, span, "builtin "+c.Name+" expects "+strconv.Itoa(entry.Arity)+" arg(s), got "+strconv.Itoa(n))
		}
		res, mismatch := entry.Handler(args)
		if mismatch != "" {
			m.fail(errs.KindError, span, "builtin "+c.Name+": "+mismatch)
		}
		m.push(res)

	default:
		m.fail(errs.NotCallable, span, "value of kind "+callee.Kind()+" is not callable")
	}
}

func (m *machine) createRecord(n, span int) {
	if len(m.stack) < 2*n {
		m.fail(errs.StackUnderflow, span, "createrecord: not enough operands")
	}
	raw := m.stack[len(m.stack)-2*n:]
	fields := make([]values.RecordField, n)
	for i := 0; i < n; i++ {
		label, ok := raw[2*i].(values.String)
		if !ok {
			m.fail(errs.RuntimeInternalBug, span, "record label is not a String")
		}
		fields[i] = values.RecordField{Label: string(label), Value: raw[2*i+1]}
	}
	m.stack = m.stack[:len(m.stack)-2*n]
	m.push(values.RecordOf(fields))
}

func (m *machine) createList(n, span int) {
	if len(m.stack) < n {
		m.fail(errs.StackUnderflow, span, "createlist: not enough operands")
	}
	elems := make([]values.Value, n)
	copy(elems, m.stack[len(m.stack)-n:])
	m.stack = m.stack[:len(m.stack)-n]
	m.push(values.NewList(elems))
}

func (m *machine) selectField(f *frame, k, span int) {
	label, ok := m.constant(f, k, span).(values.String)
	if !ok {
		m.fail(errs.RuntimeInternalBug, span, "select operand is not a String constant")
	}
	rec := m.pop(span)
	r, ok := rec.(*values.Record)
	if !ok {
		m.fail(errs.KindError, span, "cannot select a field on a "+rec.Kind())
	}
	v, ok := r.Get(string(label))
	if !ok {
		m.fail(errs.KindError, span, "no field named "+string(label))
	}
	m.push(v)
}

func (m *machine) binaryAdd(span int) {
	b, a := m.pop(span), m.pop(span)
	switch av := a.(type) {
	case values.Natural:
		bv, ok := b.(values.Natural)
		if !ok {
			m.fail(errs.KindError, span, "Natural + "+b.Kind())
		}
		m.push(av + bv)
	case values.Integer:
		bv, ok := b.(values.Integer)
		if !ok {
			m.fail(errs.KindError, span, "Integer + "+b.Kind())
		}
		m.push(av + bv)
	default:
		m.fail(errs.KindError, span, "+ requires Natural or Integer operands, got "+a.Kind())
	}
}

func (m *machine) binaryTextAppend(span int) {
	b, a := m.pop(span), m.pop(span)
	av, ok1 := a.(values.String)
	bv, ok2 := b.(values.String)
	if !ok1 || !ok2 {
		m.fail(errs.KindError, span, "++ requires String operands")
	}
	m.push(av + bv)
}

func (m *machine) binaryListAppend(span int) {
	b, a := m.pop(span), m.pop(span)
	av, ok1 := a.(*values.List)
	bv, ok2 := b.(*values.List)
	if !ok1 || !ok2 {
		m.fail(errs.KindError, span, "# requires List operands")
	}
	elems := make([]values.Value, 0, av.Len()+bv.Len())
	elems = append(elems, av.Elems...)
	elems = append(elems, bv.Elems...)
	m.push(values.NewList(elems))
}

func (m *machine) binaryEqual(span int, negate bool) {
	b, a := m.pop(span), m.pop(span)
	eq, ok := values.Equal(a, b)
	if !ok {
		m.fail(errs.KindError, span, "cannot compare "+a.Kind()+" and "+b.Kind())
	}
	m.push(values.Bool(eq != negate))
}

func (m *machine) binaryBool(span int, combine func(a, b bool) bool) {
	b, a := m.pop(span), m.pop(span)
	av, ok1 := a.(values.Bool)
	bv, ok2 := b.(values.Bool)
	if !ok1 || !ok2 {
		m.fail(errs.KindError, span, "boolean operator requires Bool operands")
	}
	m.push(values.Bool(combine(bool(av), bool(bv))))
}

func (m *machine) binaryCombine(span int) {
	b, a := m.pop(span), m.pop(span)
	av, ok1 := a.(*values.Record)
	bv, ok2 := b.(*values.Record)
	if !ok1 || !ok2 {
		m.fail(errs.KindError, span, "/\\ requires Record operands")
	}
	res, err := values.Combine(av, bv)
	if err != nil {
		m.fail(errs.KindError, span, err.Error())
	}
	m.push(res)
}

func (m *machine) binaryPrefer(span int) {
	b, a := m.pop(span), m.pop(span)
	av, ok1 := a.(*values.Record)
	bv, ok2 := b.(*values.Record)
	if !ok1 || !ok2 {
		m.fail(errs.KindError, span, "// requires Record operands")
	}
	m.push(values.Prefer(av, bv))
}
