package builtin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/laconic/lang/builtin"
	"github.com/mna/laconic/lang/values"
)

func call(t *testing.T, name string, args ...values.Value) values.Value {
	t.Helper()
	e, ok := builtin.Lookup(name)
	require.True(t, ok, "builtin %q must be registered", name)
	require.NotNil(t, e.Handler, "builtin %q must have a handler", name)
	require.Equal(t, e.Arity, len(args), "builtin %q arity mismatch in test setup", name)
	v, mismatch := e.Handler(args)
	require.Empty(t, mismatch, "builtin %q unexpectedly reported a kind mismatch: %s", name, mismatch)
	return v
}

func TestNaturalSubtractSaturates(t *testing.T) {
	assert.Equal(t, values.Natural(7), call(t, "Natural/subtract", values.Natural(3), values.Natural(10)))
	assert.Equal(t, values.Natural(0), call(t, "Natural/subtract", values.Natural(10), values.Natural(3)))
	assert.Equal(t, values.Natural(0), call(t, "Natural/subtract", values.Natural(5), values.Natural(5)))
}

func TestNaturalPredicates(t *testing.T) {
	assert.Equal(t, values.Bool(true), call(t, "Natural/isZero", values.Natural(0)))
	assert.Equal(t, values.Bool(false), call(t, "Natural/isZero", values.Natural(1)))
	assert.Equal(t, values.Bool(true), call(t, "Natural/even", values.Natural(4)))
	assert.Equal(t, values.Bool(true), call(t, "Natural/odd", values.Natural(3)))
}

func TestIntegerClampAndNegate(t *testing.T) {
	assert.Equal(t, values.Natural(0), call(t, "Integer/clamp", values.Integer(-5)))
	assert.Equal(t, values.Natural(5), call(t, "Integer/clamp", values.Integer(5)))
	assert.Equal(t, values.Integer(-5), call(t, "Integer/negate", values.Integer(5)))
}

func TestListHeadAndLastOnEmptyList(t *testing.T) {
	empty := values.NewList(nil)
	assert.Equal(t, values.None(), call(t, "List/head", empty))
	assert.Equal(t, values.None(), call(t, "List/last", empty))
}

func TestListHeadAndLastOnNonEmptyList(t *testing.T) {
	l := values.NewList([]values.Value{values.Natural(1), values.Natural(2), values.Natural(3)})
	assert.Equal(t, values.Some(values.Natural(1)), call(t, "List/head", l))
	assert.Equal(t, values.Some(values.Natural(3)), call(t, "List/last", l))
	assert.Equal(t, values.Natural(3), call(t, "List/length", l))
}

func TestListReversePreservesLength(t *testing.T) {
	l := values.NewList([]values.Value{values.Natural(1), values.Natural(2), values.Natural(3)})
	rev := call(t, "List/reverse", l).(*values.List)
	require.Equal(t, 3, rev.Len())
	assert.Equal(t, values.Natural(3), rev.Elems[0])
	assert.Equal(t, values.Natural(1), rev.Elems[2])
}

func TestTextReplace(t *testing.T) {
	got := call(t, "Text/replace", values.String("a"), values.String("o"), values.String("banana"))
	assert.Equal(t, values.String("bonono"), got)
}

func TestHandlerReportsKindMismatch(t *testing.T) {
	e, ok := builtin.Lookup("Natural/isZero")
	require.True(t, ok)
	_, mismatch := e.Handler([]values.Value{values.String("not a natural")})
	assert.Equal(t, "Natural", mismatch)
}

func TestRecognizedButUnimplementedBuiltinsHaveNoHandler(t *testing.T) {
	e, ok := builtin.Lookup("List/fold")
	require.True(t, ok)
	assert.True(t, e.Recognized)
	assert.Nil(t, e.Handler)
	assert.Equal(t, 4, e.Arity)
}

func TestLookupUnknownNameFails(t *testing.T) {
	_, ok := builtin.Lookup("Not/AThing")
	assert.False(t, ok)
}
