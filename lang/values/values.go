// Package values defines the runtime tagged value (spec.md §3): the result
// of evaluating a Function on the machine, and the constant-pool payload the
// compiler and bytecode packages embed.
package values

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// Value is the interface implemented by every runtime value.
type Value interface {
	// String returns the canonical textual dump of the value (spec.md §8,
	// "record normal form": label-sorted, order-insensitive).
	String() string

	// Kind returns a short string describing the value's tag, used in
	// error messages (KindError, NotCallable) and by Equal's cross-kind
	// rejection.
	Kind() string
}

// Bool is a boolean value.
type Bool bool

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }
func (Bool) Kind() string     { return "Bool" }

// Natural is a non-negative 64-bit integer.
type Natural uint64

func (n Natural) String() string { return strconv.FormatUint(uint64(n), 10) }
func (Natural) Kind() string     { return "Natural" }

// Integer is a signed 64-bit integer, rendered with an explicit sign
// (spec.md §6, `Integer/show`).
type Integer int64

func (i Integer) String() string {
	if i >= 0 {
		return "+" + strconv.FormatInt(int64(i), 10)
	}
	return strconv.FormatInt(int64(i), 10)
}
func (Integer) Kind() string { return "Integer" }

// String is a text value.
type String string

func (s String) String() string { return string(s) }
func (String) Kind() string     { return "Text" }

// Double wraps a float64 with a total-equality discipline: two Doubles
// compare equal iff their bit patterns match, so NaN equals itself
// (spec.md §9).
type Double float64

func (d Double) String() string { return strconv.FormatFloat(float64(d), 'g', -1, 64) }
func (Double) Kind() string     { return "Double" }

// Bits returns the IEEE-754 bit pattern used for total equality.
func (d Double) Bits() uint64 { return math.Float64bits(float64(d)) }

// Optional is either empty (None) or wraps exactly one Value (Some).
type Optional struct {
	Val Value // nil when empty
}

func None() Optional           { return Optional{} }
func Some(v Value) Optional    { return Optional{Val: v} }
func (o Optional) IsSome() bool { return o.Val != nil }

func (o Optional) String() string {
	if o.Val == nil {
		return "None"
	}
	return "Some " + o.Val.String()
}
func (Optional) Kind() string { return "Optional" }

// Record is an order-insensitive mapping from field label to Value
// (spec.md §3: "ordered mapping from field label to Value, insertion
// irrelevant, lexicographic traversal"), backed the same way the teacher's
// Map value is: a swiss-table keyed by the label, with sorted iteration
// computed on demand for traversal-sensitive operations (String, Combine).
type Record struct {
	m *swiss.Map[string, Value]
}

// NewRecord returns an empty record with initial capacity for size fields.
func NewRecord(size int) *Record {
	return &Record{m: swiss.NewMap[string, Value](uint32(size))}
}

// RecordOf builds a Record from a label/value field list; later fields
// with a repeated label overwrite earlier ones ("last writer wins",
// spec.md §4.1's CreateRecord(n) semantics).
func RecordOf(fields []RecordField) *Record {
	r := NewRecord(len(fields))
	for _, f := range fields {
		r.Set(f.Label, f.Value)
	}
	return r
}

// RecordField is a single label/value pair, used to construct a Record in
// one shot (CreateRecord's operand list). Sorted enumeration goes through
// Labels, which returns the labels alone.
type RecordField struct {
	Label string
	Value Value
}

func (r *Record) Get(label string) (Value, bool) {
	if r == nil {
		return nil, false
	}
	return r.m.Get(label)
}

func (r *Record) Set(label string, v Value) { r.m.Put(label, v) }

func (r *Record) Len() int { return r.m.Count() }

// Labels returns the record's field labels in sorted order.
func (r *Record) Labels() []string {
	labels := make([]string, 0, r.Len())
	r.m.Iter(func(k string, _ Value) (stop bool) {
		labels = append(labels, k)
		return false
	})
	slices.Sort(labels)
	return labels
}

func (Record) Kind() string { return "Record" }

func (r *Record) String() string {
	labels := r.Labels()
	parts := make([]string, len(labels))
	for i, l := range labels {
		v, _ := r.Get(l)
		parts[i] = l + " = " + v.String()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// Combine deep-merges two records (the `/\` operator, spec.md §4.3):
// shared labels whose values are both Records recurse; shared labels whose
// values are not both Records are a kind error; non-shared labels union.
func Combine(a, b *Record) (*Record, error) {
	out := NewRecord(a.Len() + b.Len())
	for _, l := range a.Labels() {
		v, _ := a.Get(l)
		out.Set(l, v)
	}
	for _, l := range b.Labels() {
		bv, _ := b.Get(l)
		if av, ok := out.Get(l); ok {
			aRec, aOK := av.(*Record)
			bRec, bOK := bv.(*Record)
			if !aOK || !bOK {
				return nil, fmt.Errorf("combine: field %q is not a record on both sides", l)
			}
			merged, err := Combine(aRec, bRec)
			if err != nil {
				return nil, err
			}
			out.Set(l, merged)
			continue
		}
		out.Set(l, bv)
	}
	return out, nil
}

// Prefer right-biases a top-level merge with no recursion (the `//`
// operator, spec.md §4.3).
func Prefer(a, b *Record) *Record {
	out := NewRecord(a.Len() + b.Len())
	for _, l := range a.Labels() {
		v, _ := a.Get(l)
		out.Set(l, v)
	}
	for _, l := range b.Labels() {
		v, _ := b.Get(l)
		out.Set(l, v)
	}
	return out
}

// List is an ordered, homogeneous-by-convention sequence of Values;
// element-kind checking is out of scope for the core (spec.md §4.3).
type List struct {
	Elems []Value
}

func NewList(elems []Value) *List { return &List{Elems: elems} }

func (l *List) Len() int { return len(l.Elems) }

func (List) Kind() string { return "List" }

func (l *List) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// BuiltinToken is an unapplied reference to a named built-in, treated as a
// pseudo-callable until fully applied (spec.md §3).
type BuiltinToken struct {
	Name  string
	Arity int
}

func (b BuiltinToken) String() string { return b.Name }
func (BuiltinToken) Kind() string     { return "Builtin" }

// Equal implements the structural equality used by the Equal/NotEqual
// opcodes. The core mandates only Bool/Bool; this implementation widens it
// consistently to full structural equality across same-kind operands
// (spec.md §9's documented extension), returning ok=false for
// cross-kind operands so the caller can raise KindError.
func Equal(a, b Value) (result bool, ok bool) {
	switch av := a.(type) {
	case Bool:
		bv, same := b.(Bool)
		return same && av == bv, same
	case Natural:
		bv, same := b.(Natural)
		return same && av == bv, same
	case Integer:
		bv, same := b.(Integer)
		return same && av == bv, same
	case String:
		bv, same := b.(String)
		return same && av == bv, same
	case Double:
		bv, same := b.(Double)
		return same && av.Bits() == bv.Bits(), same
	case Optional:
		bv, same := b.(Optional)
		if !same {
			return false, false
		}
		if av.Val == nil || bv.Val == nil {
			return av.Val == nil && bv.Val == nil, true
		}
		eq, eok := Equal(av.Val, bv.Val)
		return eq, eok
	case *Record:
		bv, same := b.(*Record)
		if !same {
			return false, false
		}
		if av.Len() != bv.Len() {
			return false, true
		}
		for _, l := range av.Labels() {
			x, _ := av.Get(l)
			y, found := bv.Get(l)
			if !found {
				return false, true
			}
			eq, eok := Equal(x, y)
			if !eok {
				return false, false
			}
			if !eq {
				return false, true
			}
		}
		return true, true
	case *List:
		bv, same := b.(*List)
		if !same {
			return false, false
		}
		if av.Len() != bv.Len() {
			return false, true
		}
		for i := range av.Elems {
			eq, eok := Equal(av.Elems[i], bv.Elems[i])
			if !eok {
				return false, false
			}
			if !eq {
				return false, true
			}
		}
		return true, true
	case BuiltinToken:
		bv, same := b.(BuiltinToken)
		return same && av.Name == bv.Name, same
	default:
		return false, false
	}
}
