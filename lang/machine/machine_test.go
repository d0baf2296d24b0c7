package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/laconic/lang/bytecode"
	"github.com/mna/laconic/lang/errs"
	"github.com/mna/laconic/lang/machine"
	"github.com/mna/laconic/lang/values"
)

func runChunk(t *testing.T, chunk *bytecode.Chunk) (values.Value, error) {
	t.Helper()
	fn := &bytecode.Function{Name: "<test>", Arity: 0, Chunk: chunk}
	return machine.Run(fn, nil)
}

func TestRunSimpleConstantReturn(t *testing.T) {
	c := &bytecode.Chunk{}
	k := c.AddConstant(values.Natural(7))
	c.Emit(bytecode.Constant, k, 0)
	c.Emit(bytecode.Return, 0, 0)

	v, err := runChunk(t, c)
	require.NoError(t, err)
	assert.Equal(t, values.Natural(7), v)
}

func TestRunPopOnEmptyStackIsStackUnderflow(t *testing.T) {
	c := &bytecode.Chunk{}
	c.Emit(bytecode.Pop, 0, 0)
	c.Emit(bytecode.Return, 0, 0)

	_, err := runChunk(t, c)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.StackUnderflow, re.Kind)
}

func TestRunConstantIndexOutOfRange(t *testing.T) {
	c := &bytecode.Chunk{}
	c.Emit(bytecode.Constant, 99, 0)
	c.Emit(bytecode.Return, 0, 0)

	_, err := runChunk(t, c)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.ConstantIndexOutOfRange, re.Kind)
}

func TestRunCallOnNonCallableIsNotCallable(t *testing.T) {
	c := &bytecode.Chunk{}
	k := c.AddConstant(values.Natural(1))
	c.Emit(bytecode.Constant, k, 0) // not a closure or builtin
	c.Emit(bytecode.Call, 0, 0)
	c.Emit(bytecode.Return, 0, 0)

	_, err := runChunk(t, c)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.NotCallable, re.Kind)
}

func TestRunAddAcrossKindsIsKindError(t *testing.T) {
	c := &bytecode.Chunk{}
	k1 := c.AddConstant(values.Natural(1))
	k2 := c.AddConstant(values.String("x"))
	c.Emit(bytecode.Constant, k1, 0)
	c.Emit(bytecode.Constant, k2, 0)
	c.Emit(bytecode.Add, 0, 0)
	c.Emit(bytecode.Return, 0, 0)

	_, err := runChunk(t, c)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.KindError, re.Kind)
}

func TestRunBuiltinWrongArgCountIsArityMismatch(t *testing.T) {
	// Call(0) against a builtin declared with arity 1: the callee isn't
	// consumed by a matching Call, so the machine sees a bare BuiltinToken
	// being invoked with the wrong argument count.
	c := &bytecode.Chunk{}
	k := c.AddConstant(values.BuiltinToken{Name: "Natural/isZero", Arity: 1})
	c.Emit(bytecode.Builtin, k, 0)
	c.Emit(bytecode.Call, 0, 0)
	c.Emit(bytecode.Return, 0, 0)

	_, err := runChunk(t, c)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.ArityMismatch, re.Kind)
}

func TestRunAssertFailurePopsBoolAndFails(t *testing.T) {
	c := &bytecode.Chunk{}
	k := c.AddConstant(values.Bool(false))
	c.Emit(bytecode.Constant, k, 0)
	c.Emit(bytecode.Assert, 0, 0)
	c.Emit(bytecode.Return, 0, 0)

	_, err := runChunk(t, c)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.AssertionFailed, re.Kind)
}

func TestRunAssertSuccessPushesBoolTrue(t *testing.T) {
	c := &bytecode.Chunk{}
	k := c.AddConstant(values.Bool(true))
	c.Emit(bytecode.Constant, k, 0)
	c.Emit(bytecode.Assert, 0, 0)
	c.Emit(bytecode.Return, 0, 0)

	v, err := runChunk(t, c)
	require.NoError(t, err)
	assert.Equal(t, values.Bool(true), v)
}
