package eval_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/laconic/lang/compiler"
	"github.com/mna/laconic/lang/errs"
	"github.com/mna/laconic/lang/eval"
	"github.com/mna/laconic/lang/machine"
	"github.com/mna/laconic/lang/parser"
	"github.com/mna/laconic/lang/values"
)

func TestEvaluateSourceScenarios(t *testing.T) {
	cases := []struct {
		desc string
		src  string
		want string
	}{
		{"arithmetic let chain", `let x = 1 in let y = 2 in x + y`, "3"},
		{"single-argument lambda", `let f = \(x : Natural) -> x + 1 in f 41`, "42"},
		{"one captured upvalue", `let mk = \(a : Natural) -> \(b : Natural) -> a + b in (mk 10) 5`, "15"},
		{
			"two-deep upvalue path",
			`let a = 1 in let g = \(x : Natural) -> let h = \(y : Natural) -> a + x + y in h 10 in g 100`,
			"111",
		},
		{"text interpolation", `"hi ${"th" ++ "ere"}!"`, "hi there!"},
		{"list length", `List/length [1,2,3]`, "3"},
		{"saturating subtract, positive", `Natural/subtract 3 10`, "7"},
		{"saturating subtract, clamped", `Natural/subtract 10 3`, "0"},
	}

	for _, tt := range cases {
		t.Run(tt.desc, func(t *testing.T) {
			v, err := eval.EvaluateSource([]byte(tt.src), ".")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestEvaluateSourceListHeadOnEmptyList(t *testing.T) {
	v, err := eval.EvaluateSource([]byte(`List/head ([] : List Natural)`), ".")
	require.NoError(t, err)
	assert.Equal(t, "None", v.String())
}

func TestEvaluateSourceRecordPreferIsShallow(t *testing.T) {
	v, err := eval.EvaluateSource(
		[]byte(`{ a = 1, b = { c = 2 } } // { b = { d = 3 } }`), ".")
	require.NoError(t, err)
	rec, ok := v.(*values.Record)
	require.True(t, ok)
	bv, ok := rec.Get("b")
	require.True(t, ok)
	brec, ok := bv.(*values.Record)
	require.True(t, ok)
	_, hasC := brec.Get("c")
	assert.False(t, hasC, "prefer must not recurse into shared-label sub-records")
	dv, ok := brec.Get("d")
	require.True(t, ok)
	assert.Equal(t, "3", dv.String())
}

func TestEvaluateSourceRecordCombineIsDeep(t *testing.T) {
	v, err := eval.EvaluateSource(
		[]byte(`{ a = 1, b = { c = 2 } } /\ { b = { d = 3 } }`), ".")
	require.NoError(t, err)
	rec, ok := v.(*values.Record)
	require.True(t, ok)
	bv, ok := rec.Get("b")
	require.True(t, ok)
	brec, ok := bv.(*values.Record)
	require.True(t, ok)
	cv, hasC := brec.Get("c")
	require.True(t, hasC, "combine must merge recursively")
	assert.Equal(t, "2", cv.String())
	dv, hasD := brec.Get("d")
	require.True(t, hasD)
	assert.Equal(t, "3", dv.String())
}

func TestEvaluateSourceNegativeCases(t *testing.T) {
	t.Run("redefinition at the same scope depth is a CompileError", func(t *testing.T) {
		_, err := eval.EvaluateSource([]byte(`let x = 1 in let x = 2 in x`), ".")
		require.Error(t, err)
		var ce *errs.CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, errs.VarRedefinition, ce.Kind)
	})

	t.Run("undefined variable is a CompileError", func(t *testing.T) {
		_, err := eval.EvaluateSource([]byte(`y + 1`), ".")
		require.Error(t, err)
		var ce *errs.CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, errs.VarUndefined, ce.Kind)
	})

	t.Run("comparing across kinds is a RuntimeError KindError", func(t *testing.T) {
		_, err := eval.EvaluateSource([]byte(`1 == "x"`), ".")
		require.Error(t, err)
		var re *errs.RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, errs.KindError, re.Kind)
	})

	t.Run("a failing assertion is a RuntimeError AssertionFailed", func(t *testing.T) {
		_, err := eval.EvaluateSource([]byte(`assert : True == False`), ".")
		require.Error(t, err)
		var re *errs.RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, errs.AssertionFailed, re.Kind)
	})
}

// TestImportMemoization exercises spec.md §8 scenario 9: importing the same
// file twice evaluates its side-effect-free contents once and reuses the
// value from the registry.
func TestImportMemoization(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dhall"), []byte(`1 + 2`), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "b.dhall"),
		[]byte(`import "./a.dhall" + import "./a.dhall"`),
		0o644,
	))

	src, err := os.ReadFile(filepath.Join(dir, "b.dhall"))
	require.NoError(t, err)
	e, err := parser.Parse(src)
	require.NoError(t, err)

	c := compiler.New()
	fn, err := c.CompileSource(e, dir)
	require.NoError(t, err)

	v, err := machine.Run(fn, c.Registry())
	require.NoError(t, err)
	assert.Equal(t, "6", v.String())
	assert.Len(t, c.Registry(), 1, "both imports of a.dhall must share one registry entry")
}
