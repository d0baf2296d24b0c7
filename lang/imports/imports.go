// Package imports resolves the three import origins spec.md §4.4
// describes — a local file path, an environment variable, or a remote
// URL, each with an optional sha256 hash — into raw source text and
// then a parsed lang/ast.Expr. It is a clean leaf: it depends on
// lang/parser to turn fetched bytes into an Expr, but never on
// lang/compiler or lang/machine, so lang/compiler's eager import
// evaluation (which does call into lang/machine) cannot form an import
// cycle (spec.md §9). Grounded on the original source's file-import
// cache (_examples/original_source/src/import2.rs), generalized to the
// three origin kinds this spec's SPEC_FULL.md §4 adds (env/remote) on
// top of the original's local-path-only support.
package imports

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mna/laconic/lang/ast"
	"github.com/mna/laconic/lang/parser"
)

// Origin describes one import expression's surface form, as already
// classified and parsed by lang/parser (spec.md §4.4: "local file path,
// environment variable, or remote URL with optional hash").
type Origin struct {
	Kind  ast.ImportKind
	Value string // path / env var name / URL, depending on Kind
	Hash  string // optional hex sha256, any origin kind; verified by Load when set
}

// httpClient is package-level so tests may swap it; production code never
// needs to (spec.md's remote-import support is a best-effort convenience,
// not a hardened fetcher).
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Canonicalize computes the memoization key an import resolves to,
// matching origins that denote the same underlying source (spec.md §4.4:
// "memoized by canonical origin"). Local paths are resolved relative to
// baseDir and cleaned; env vars and URLs are used as-is, since they carry
// no directory-relative ambiguity.
func Canonicalize(baseDir string, o Origin) (string, error) {
	switch o.Kind {
	case ast.ImportLocalPath:
		p := o.Value
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		return "file:" + filepath.Clean(p), nil
	case ast.ImportEnvVar:
		return "env:" + o.Value, nil
	case ast.ImportRemoteURL:
		return "url:" + o.Value, nil
	default:
		return "", fmt.Errorf("unknown import kind %v", o.Kind)
	}
}

// Load fetches and parses o, returning the parsed expression and the base
// directory subsequent relative imports inside it should resolve against
// (the directory containing the fetched unit, for local paths; baseDir
// unchanged for env/remote origins, which carry no filesystem locality).
func Load(baseDir string, o Origin) (ast.Expr, string, error) {
	src, nextBaseDir, err := fetch(baseDir, o)
	if err != nil {
		return nil, "", err
	}
	if o.Hash != "" {
		if err := verifyHash(src, o.Hash); err != nil {
			return nil, "", err
		}
	}
	e, err := parser.Parse(src)
	if err != nil {
		return nil, "", fmt.Errorf("parsing import %q: %w", o.Value, err)
	}
	return e, nextBaseDir, nil
}

func fetch(baseDir string, o Origin) ([]byte, string, error) {
	switch o.Kind {
	case ast.ImportLocalPath:
		p := o.Value
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, "", fmt.Errorf("reading import %q: %w", p, err)
		}
		return b, filepath.Dir(p), nil

	case ast.ImportEnvVar:
		v, ok := os.LookupEnv(o.Value)
		if !ok {
			return nil, "", fmt.Errorf("environment variable %q is not set", o.Value)
		}
		return []byte(v), baseDir, nil

	case ast.ImportRemoteURL:
		req, err := http.NewRequest(http.MethodGet, o.Value, nil)
		if err != nil {
			return nil, "", fmt.Errorf("building request for %q: %w", o.Value, err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetching %q: %w", o.Value, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("fetching %q: status %s", o.Value, resp.Status)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("reading response body for %q: %w", o.Value, err)
		}
		return b, baseDir, nil

	default:
		return nil, "", fmt.Errorf("unknown import kind %v", o.Kind)
	}
}

// verifyHash checks src's sha256 against wantHex, reporting a mismatch as
// an error. Per spec.md §9 the hash is "recorded but not necessarily
// verified" by the core; this implementation does verify it when present,
// since a cheap integrity check costs nothing once fetched and a caller
// relying on pinning deserves a real failure rather than silent
// acceptance.
func verifyHash(src []byte, wantHex string) error {
	want, err := hex.DecodeString(strings.TrimSpace(wantHex))
	if err != nil {
		return fmt.Errorf("malformed sha256 hash %q: %w", wantHex, err)
	}
	got := sha256.Sum256(src)
	if subtle.ConstantTimeCompare(got[:], want) != 1 {
		return fmt.Errorf("sha256 mismatch: expected %x, got %x", want, got)
	}
	return nil
}
