package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/laconic/lang/eval"
	"github.com/mna/laconic/lang/printer"
	"github.com/mna/laconic/lang/values"
)

// Eval is the `laconic eval <path>` command: parse, compile and run the
// file at path, then print its result in the requested --format.
func (c *Cmd) Eval(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) != 1 {
		err := fmt.Errorf("eval: exactly one file must be provided")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	v, err := eval.EvaluateFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	out, err := render(v, c.Format)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	fmt.Fprintln(stdio.Stdout, out)
	return nil
}

func render(v values.Value, format string) (string, error) {
	switch format {
	case "", "dhall":
		return printer.Dhall(v), nil
	case "json":
		return printer.JSON(v, true)
	case "yaml":
		return printer.YAML(v)
	default:
		return "", fmt.Errorf("invalid format: %s", format)
	}
}
