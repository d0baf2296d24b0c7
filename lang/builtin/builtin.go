// Package builtin holds the fixed table of named primitives the compiler
// resolves identifiers against and the machine dispatches Call(n) to, per
// spec.md §6's normative table.
package builtin

import (
	"strings"

	"github.com/mna/laconic/lang/values"
)

// Handler evaluates a builtin's declared arity of arguments, already
// pushed in left-to-right order, into one result Value. On a kind mismatch
// it returns, instead of an error value, the name of the operand kind it
// expected; the caller (lang/machine) wraps it into a KindError
// RuntimeError whose message names the builtin and that kind.
type Handler func(args []values.Value) (values.Value, string)

// Entry describes one builtin: its declared arity (spec.md §4.1's Call(n)
// "consuming exactly the arity that built-in declares") and its handler.
// Recognized is true for names the core names but does not implement
// (spec.md §6: "may leave them as TODO and fail cleanly on use"); such
// entries have a nil Handler.
type Entry struct {
	Name      string
	Arity     int
	Handler   Handler
	Recognized bool // true even when Handler is nil
}

// Table is the fixed name -> Entry map, built once at package init.
var Table = buildTable()

func buildTable() map[string]Entry {
	t := map[string]Entry{
		"Natural/isZero": {Name: "Natural/isZero", Arity: 1, Handler: naturalIsZero},
		"Natural/even":   {Name: "Natural/even", Arity: 1, Handler: naturalEven},
		"Natural/odd":    {Name: "Natural/odd", Arity: 1, Handler: naturalOdd},
		"Natural/toInteger": {Name: "Natural/toInteger", Arity: 1, Handler: naturalToInteger},
		"Natural/subtract":  {Name: "Natural/subtract", Arity: 2, Handler: naturalSubtract},
		"Natural/show":      {Name: "Natural/show", Arity: 1, Handler: naturalShow},
		"Integer/negate":    {Name: "Integer/negate", Arity: 1, Handler: integerNegate},
		"Integer/clamp":     {Name: "Integer/clamp", Arity: 1, Handler: integerClamp},
		"Integer/show":      {Name: "Integer/show", Arity: 1, Handler: integerShow},
		"Text/replace":      {Name: "Text/replace", Arity: 3, Handler: textReplace},
		"List/length":       {Name: "List/length", Arity: 1, Handler: listLength},
		"List/reverse":      {Name: "List/reverse", Arity: 1, Handler: listReverse},
		"List/head":         {Name: "List/head", Arity: 1, Handler: listHead},
		"List/last":         {Name: "List/last", Arity: 1, Handler: listLast},
		"Some":              {Name: "Some", Arity: 1, Handler: some},
	}
	for name, arity := range map[string]int{
		"Natural/fold":    3,
		"Natural/build":   1,
		"List/fold":       4,
		"List/build":      2,
		"List/indexed":    1,
		"Text/show":       1,
		"Integer/toDouble": 1,
		"Double/show":     1,
	} {
		t[name] = Entry{Name: name, Arity: arity, Recognized: true}
	}
	return t
}

// Lookup returns the table entry for name, or false if name is not a
// known builtin at all (as opposed to recognized-but-unimplemented).
func Lookup(name string) (Entry, bool) {
	e, ok := Table[name]
	return e, ok
}

func naturalIsZero(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	return values.Bool(n == 0), ""
}

func naturalEven(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	return values.Bool(n%2 == 0), ""
}

func naturalOdd(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	return values.Bool(n%2 == 1), ""
}

func naturalToInteger(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	return values.Integer(n), ""
}

// naturalSubtract computes max(0, b-a) with declared argument order (a, b)
// per spec.md §6: `Natural/subtract 3 10` = 7, `Natural/subtract 10 3` = 0.
func naturalSubtract(args []values.Value) (values.Value, string) {
	a, ok := args[0].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	b, ok := args[1].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	if b < a {
		return values.Natural(0), ""
	}
	return b - a, ""
}

func naturalShow(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Natural)
	if !ok {
		return nil, "Natural"
	}
	return values.String(n.String()), ""
}

func integerNegate(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Integer)
	if !ok {
		return nil, "Integer"
	}
	return -n, ""
}

// integerClamp returns max(0, n) as a Natural, per spec.md §6.
func integerClamp(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Integer)
	if !ok {
		return nil, "Integer"
	}
	if n < 0 {
		return values.Natural(0), ""
	}
	return values.Natural(n), ""
}

func integerShow(args []values.Value) (values.Value, string) {
	n, ok := args[0].(values.Integer)
	if !ok {
		return nil, "Integer"
	}
	return values.String(n.String()), ""
}

func textReplace(args []values.Value) (values.Value, string) {
	needle, ok := args[0].(values.String)
	if !ok {
		return nil, "Text"
	}
	repl, ok := args[1].(values.String)
	if !ok {
		return nil, "Text"
	}
	haystack, ok := args[2].(values.String)
	if !ok {
		return nil, "Text"
	}
	return values.String(strings.ReplaceAll(string(haystack), string(needle), string(repl))), ""
}

func listLength(args []values.Value) (values.Value, string) {
	l, ok := args[0].(*values.List)
	if !ok {
		return nil, "List"
	}
	return values.Natural(l.Len()), ""
}

func listReverse(args []values.Value) (values.Value, string) {
	l, ok := args[0].(*values.List)
	if !ok {
		return nil, "List"
	}
	out := make([]values.Value, l.Len())
	for i, v := range l.Elems {
		out[l.Len()-1-i] = v
	}
	return values.NewList(out), ""
}

func listHead(args []values.Value) (values.Value, string) {
	l, ok := args[0].(*values.List)
	if !ok {
		return nil, "List"
	}
	if l.Len() == 0 {
		return values.None(), ""
	}
	return values.Some(l.Elems[0]), ""
}

func listLast(args []values.Value) (values.Value, string) {
	l, ok := args[0].(*values.List)
	if !ok {
		return nil, "List"
	}
	if l.Len() == 0 {
		return values.None(), ""
	}
	return values.Some(l.Elems[l.Len()-1]), ""
}

func some(args []values.Value) (values.Value, string) {
	return values.Some(args[0]), ""
}
