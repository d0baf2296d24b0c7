package compiler_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/laconic/lang/compiler"
	"github.com/mna/laconic/lang/errs"
	"github.com/mna/laconic/lang/parser"
)

func compile(t *testing.T, src string) (*compiler.Compiler, error) {
	t.Helper()
	e, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	c := compiler.New()
	_, err = c.CompileSource(e, ".")
	return c, err
}

func TestCompileUndersuppliedBuiltinApplicationIsArityMismatch(t *testing.T) {
	_, err := compile(t, `Natural/subtract 1`)
	require.Error(t, err)
	var ce *errs.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errs.BuiltinArityMismatch, ce.Kind)
}

func TestCompileRedefinitionInSameLetBlockFails(t *testing.T) {
	_, err := compile(t, `let x = 1 in let x = 2 in x`)
	require.Error(t, err)
	var ce *errs.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errs.VarRedefinition, ce.Kind)
}

func TestCompileShadowingAcrossScopesIsAllowed(t *testing.T) {
	// A lambda parameter may shadow an outer let-binding of the same name;
	// only same-depth redefinition is rejected.
	_, err := compile(t, `let x = 1 in (\(x : Natural) -> x + 1) 2`)
	require.NoError(t, err)
}

func TestCompileUndefinedVariableFails(t *testing.T) {
	_, err := compile(t, `undefinedName + 1`)
	require.Error(t, err)
	var ce *errs.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errs.VarUndefined, ce.Kind)
}

func TestCompileBarePrimitiveTypeNameResolvesAsBuiltinToken(t *testing.T) {
	// Natural used as a value position (not applied) falls back to a
	// BuiltinToken constant rather than raising VarUndefined.
	_, err := compile(t, `[Natural] # ([] : List Natural)`)
	require.NoError(t, err)
}

func TestCompileRegistryStartsEmptyWithoutImports(t *testing.T) {
	c, err := compile(t, `1 + 1`)
	require.NoError(t, err)
	assert.Empty(t, c.Registry())
}

func TestCompileCyclicImportFails(t *testing.T) {
	// A local file importing itself must be rejected as a cyclic import,
	// surfaced as a RuntimeError per SPEC_FULL.md's ImportFailed("cycle").
	dir := t.TempDir()
	path := dir + "/self.dhall"
	require.NoError(t, os.WriteFile(path, []byte(`import "./self.dhall"`), 0o644))

	e, err := parser.Parse([]byte(`import "./self.dhall"`))
	require.NoError(t, err)
	c := compiler.New()
	_, err = c.CompileSource(e, dir)
	require.Error(t, err)
	var re *errs.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errs.ImportFailed, re.Kind)
}
