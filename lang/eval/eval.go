// Package eval is the facade spec.md §6 describes: given surface-language
// source text (and the directory it should resolve relative imports
// against), parse it, compile it, run it, and hand back the resulting
// Value or the first CompileError/RuntimeError encountered. It wires
// together lang/parser, lang/compiler and lang/machine the way the
// teacher's internal/maincmd wires its own lang/scanner+parser+compiler+
// machine pipeline for a single "run this source" command.
package eval

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mna/laconic/lang/compiler"
	"github.com/mna/laconic/lang/machine"
	"github.com/mna/laconic/lang/parser"
	"github.com/mna/laconic/lang/values"
)

// EvaluateSource parses, compiles and runs src, resolving relative imports
// against baseDir (the directory containing src, or the current working
// directory for inline/stdin source).
func EvaluateSource(src []byte, baseDir string) (values.Value, error) {
	e, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	c := compiler.New()
	fn, err := c.CompileSource(e, baseDir)
	if err != nil {
		return nil, err
	}

	return machine.Run(fn, c.Registry())
}

// EvaluateFile reads and evaluates the source unit at path, resolving its
// own relative imports against path's containing directory.
func EvaluateFile(path string) (values.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return EvaluateSource(src, filepath.Dir(path))
}
