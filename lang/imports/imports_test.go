package imports_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/laconic/lang/ast"
	"github.com/mna/laconic/lang/imports"
)

func TestCanonicalizeLocalPathJoinsAndCleans(t *testing.T) {
	key, err := imports.Canonicalize("/work/dir", imports.Origin{
		Kind: ast.ImportLocalPath, Value: "./sub/../a.dhall",
	})
	require.NoError(t, err)
	assert.Equal(t, "file:/work/dir/a.dhall", key)
}

func TestCanonicalizeLocalAbsolutePathIsUnaffectedByBaseDir(t *testing.T) {
	key, err := imports.Canonicalize("/irrelevant", imports.Origin{
		Kind: ast.ImportLocalPath, Value: "/abs/a.dhall",
	})
	require.NoError(t, err)
	assert.Equal(t, "file:/abs/a.dhall", key)
}

func TestCanonicalizeSameTargetViaDifferentSpellingsMatch(t *testing.T) {
	k1, err := imports.Canonicalize("/work/dir", imports.Origin{Kind: ast.ImportLocalPath, Value: "./a.dhall"})
	require.NoError(t, err)
	k2, err := imports.Canonicalize("/work/dir", imports.Origin{Kind: ast.ImportLocalPath, Value: "sub/../a.dhall"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestCanonicalizeEnvAndURL(t *testing.T) {
	k, err := imports.Canonicalize(".", imports.Origin{Kind: ast.ImportEnvVar, Value: "HOME"})
	require.NoError(t, err)
	assert.Equal(t, "env:HOME", k)

	k, err = imports.Canonicalize(".", imports.Origin{Kind: ast.ImportRemoteURL, Value: "https://example.com/a.dhall"})
	require.NoError(t, err)
	assert.Equal(t, "url:https://example.com/a.dhall", k)
}

func TestLoadLocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dhall"), []byte(`1 + 1`), 0o644))

	e, nextBaseDir, err := imports.Load(dir, imports.Origin{Kind: ast.ImportLocalPath, Value: "./a.dhall"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, dir, nextBaseDir)
}

func TestLoadLocalFileMissing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := imports.Load(dir, imports.Origin{Kind: ast.ImportLocalPath, Value: "./missing.dhall"})
	assert.Error(t, err)
}

func TestLoadEnvVar(t *testing.T) {
	t.Setenv("LACONIC_TEST_IMPORT", `"hello"`)
	e, nextBaseDir, err := imports.Load("/wherever", imports.Origin{Kind: ast.ImportEnvVar, Value: "LACONIC_TEST_IMPORT"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "/wherever", nextBaseDir)
}

func TestLoadEnvVarUnset(t *testing.T) {
	_, _, err := imports.Load(".", imports.Origin{Kind: ast.ImportEnvVar, Value: "LACONIC_DOES_NOT_EXIST_XYZ"})
	assert.Error(t, err)
}

func TestLoadVerifiesHashMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dhall"), []byte(`1`), 0o644))

	_, _, err := imports.Load(dir, imports.Origin{
		Kind: ast.ImportLocalPath, Value: "./a.dhall",
		Hash: "0000000000000000000000000000000000000000000000000000000000000000",
	})
	assert.Error(t, err)
}

func TestLoadRemoteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`42`))
	}))
	defer srv.Close()

	e, nextBaseDir, err := imports.Load(".", imports.Origin{Kind: ast.ImportRemoteURL, Value: srv.URL})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, ".", nextBaseDir)
}

func TestLoadRemoteURLNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := imports.Load(".", imports.Origin{Kind: ast.ImportRemoteURL, Value: srv.URL})
	assert.Error(t, err)
}
